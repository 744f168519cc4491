package harness

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrBadSignature is returned when a signed token does not verify.
var ErrBadSignature = errors.New("signature verification failed")

// Signer produces signed-message tokens with an ed25519 key. A token is
// base58(signature || payload) where payload is the JSON encoding of the
// signed value.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner wraps an existing private key.
func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return &Signer{priv: priv}, nil
}

// ParseSigner decodes a base58 private key. Both the 32 byte seed and the
// 64 byte expanded form are accepted.
func ParseSigner(encoded string) (*Signer, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return &Signer{priv: ed25519.NewKeyFromSeed(raw)}, nil
	case ed25519.PrivateKeySize:
		return &Signer{priv: ed25519.PrivateKey(raw)}, nil
	default:
		return nil, fmt.Errorf("private key has %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// PublicKey returns the base58 encoded public key.
func (s *Signer) PublicKey() string {
	return base58.Encode(s.priv.Public().(ed25519.PublicKey))
}

// PrivateKey returns the base58 encoded 32 byte seed, the form ParseSigner accepts.
func (s *Signer) PrivateKey() string {
	return base58.Encode(s.priv.Seed())
}

// Sign encodes v as JSON and returns the signed-message token.
func (s *Signer) Sign(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	sig := ed25519.Sign(s.priv, payload)
	return base58.Encode(append(sig, payload...)), nil
}

// Open verifies token against the base58 public key and returns the signed
// JSON payload.
func Open(publicKey, token string) ([]byte, error) {
	pub, err := base58.Decode(publicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	raw, err := base58.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	if len(raw) < ed25519.SignatureSize {
		return nil, ErrBadSignature
	}
	sig, payload := raw[:ed25519.SignatureSize], raw[ed25519.SignatureSize:]
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return nil, ErrBadSignature
	}
	return payload, nil
}
