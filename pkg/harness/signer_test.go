package harness

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndOpen(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	token, err := s.Sign(map[string]any{"taskId": "t1", "roundNumber": 2})
	require.NoError(t, err)

	payload, err := Open(s.PublicKey(), token)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "t1", got["taskId"])
	assert.Equal(t, float64(2), got["roundNumber"])
}

func TestOpenRejectsWrongKeyAndTampering(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)
	other, err := GenerateSigner()
	require.NoError(t, err)

	token, err := s.Sign(map[string]any{"a": 1})
	require.NoError(t, err)

	_, err = Open(other.PublicKey(), token)
	assert.ErrorIs(t, err, ErrBadSignature)

	raw, err := base58.Decode(token)
	require.NoError(t, err)
	raw[len(raw)-2] ^= 0xff
	_, err = Open(s.PublicKey(), base58.Encode(raw))
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = Open(s.PublicKey(), base58.Encode([]byte("short")))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseSigner(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)

	fromSeed, err := ParseSigner(base58.Encode(seed))
	require.NoError(t, err)
	fromFull, err := ParseSigner(base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, fromSeed.PublicKey(), fromFull.PublicKey())

	_, err = ParseSigner(base58.Encode([]byte("too short")))
	assert.Error(t, err)
	_, err = ParseSigner("0OIl")
	assert.Error(t, err)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	parsed, err := ParseSigner(s.PrivateKey())
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), parsed.PublicKey())
}

func TestKeysUseBase58(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	s := NewSigner(ed25519.NewKeyFromSeed(seed))

	assert.Equal(t, base58.Encode(seed), s.PrivateKey())
	assert.Equal(t, base58.Encode(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)), s.PublicKey())

	token, err := s.Sign(map[string]any{"a": 1})
	require.NoError(t, err)
	raw, err := base58.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw[ed25519.SignatureSize:]))

	// Standard base64 padding is not part of the base58 alphabet.
	_, err = Open(s.PublicKey(), token+"==")
	assert.Error(t, err)
}
