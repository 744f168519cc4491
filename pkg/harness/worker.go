package harness

import (
	"fmt"
	"strings"
)

// Worker describes one worker under test.
type Worker struct {
	Name string
	URL  string
	// Staking signs task and audit payloads.
	Staking *Signer
	// Identity is the worker's main key; its public half is sent as pubKey.
	Identity *Signer
	Env      map[string]string
}

// StakingPublicKey returns the base58 staking public key.
func (w *Worker) StakingPublicKey() string {
	return w.Staking.PublicKey()
}

// PublicKey returns the base58 identity public key.
func (w *Worker) PublicKey() string {
	return w.Identity.PublicKey()
}

// GithubUsername returns the GITHUB_USERNAME entry of the worker's env.
func (w *Worker) GithubUsername() string {
	return w.Env["GITHUB_USERNAME"]
}

// NewWorker builds a Worker from its configuration, parsing both keys.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("worker %s: url is required", cfg.Name)
	}
	staking, err := ParseSigner(cfg.StakingKey)
	if err != nil {
		return nil, fmt.Errorf("worker %s: staking key: %w", cfg.Name, err)
	}
	identity, err := ParseSigner(cfg.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("worker %s: identity key: %w", cfg.Name, err)
	}
	// Config keys are case-folded by viper; env names are upper case.
	env := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		env[strings.ToUpper(k)] = v
	}
	return &Worker{
		Name:     cfg.Name,
		URL:      strings.TrimRight(cfg.URL, "/"),
		Staking:  staking,
		Identity: identity,
		Env:      env,
	}, nil
}
