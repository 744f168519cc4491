package harness

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/orca-swarm/summarizer-worker/pkg/logging"
)

// Config drives a round-runner session.
type Config struct {
	TaskID          string          `mapstructure:"task_id"`
	MiddleServerURL string          `mapstructure:"middle_server_url"`
	StartRound      int             `mapstructure:"start_round"`
	Rounds          int             `mapstructure:"rounds"`
	RepoURL         string          `mapstructure:"repo_url"`
	Log             logging.Options `mapstructure:"log"`
	Workers         []WorkerConfig  `mapstructure:"workers"`
}

// WorkerConfig describes one worker. Keys are base58 ed25519 private keys.
type WorkerConfig struct {
	Name        string            `mapstructure:"name"`
	URL         string            `mapstructure:"url"`
	StakingKey  string            `mapstructure:"staking_key"`
	IdentityKey string            `mapstructure:"identity_key"`
	Env         map[string]string `mapstructure:"env"`
}

// Default returns a configuration with sane defaults.
func Default() *Config {
	return &Config{
		MiddleServerURL: "http://localhost:3000",
		StartRound:      1,
		Rounds:          1,
		Log: logging.Options{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
		},
	}
}

// Load reads configuration from a YAML file when path is set, otherwise it
// searches common locations. Environment variables use the prefix ROUND_RUNNER
// with `.` replaced by `_`. Example: ROUND_RUNNER_TASK_ID=abc
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ROUND_RUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("task_id", cfg.TaskID)
	v.SetDefault("middle_server_url", cfg.MiddleServerURL)
	v.SetDefault("start_round", cfg.StartRound)
	v.SetDefault("rounds", cfg.Rounds)
	v.SetDefault("repo_url", cfg.RepoURL)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)

	if path == "" {
		path = os.Getenv("ROUND_RUNNER_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("round-runner")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.TaskID) == "" {
		return fmt.Errorf("task_id is required")
	}
	if c.MiddleServerURL == "" {
		return fmt.Errorf("middle_server_url is required")
	}
	c.MiddleServerURL = strings.TrimRight(c.MiddleServerURL, "/")
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be at least 1, got %d", c.Rounds)
	}
	if c.StartRound < 0 {
		return fmt.Errorf("start_round must not be negative, got %d", c.StartRound)
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker is required")
	}
	seen := make(map[string]bool, len(c.Workers))
	for _, w := range c.Workers {
		if seen[w.Name] {
			return fmt.Errorf("duplicate worker name %q", w.Name)
		}
		seen[w.Name] = true
	}
	return nil
}

// BuildWorkers parses every worker descriptor.
func (c *Config) BuildWorkers() ([]*Worker, error) {
	workers := make([]*Worker, 0, len(c.Workers))
	for _, wc := range c.Workers {
		w, err := NewWorker(wc)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}
