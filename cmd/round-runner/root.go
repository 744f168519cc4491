/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orca-swarm/summarizer-worker/pkg/harness"
	"github.com/orca-swarm/summarizer-worker/pkg/logging"
)

type rootOptions struct {
	configPath string
	rounds     int
	startRound int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "round-runner",
		Short:         "Drive summarizer workers through task rounds",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to the round-runner YAML config")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 0, "number of rounds to run (overrides config)")
	cmd.Flags().IntVar(&opts.startRound, "start-round", -1, "first round number (overrides config)")

	cmd.AddCommand(newKeygenCmd())
	return cmd
}

func (o *rootOptions) run(cmd *cobra.Command) error {
	cfg, err := harness.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("rounds") {
		if o.rounds < 1 {
			return fmt.Errorf("--rounds must be at least 1")
		}
		cfg.Rounds = o.rounds
	}
	if cmd.Flags().Changed("start-round") {
		cfg.StartRound = o.startRound
	}

	logger, sync, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer sync()

	workers, err := cfg.BuildWorkers()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := harness.NewRunner(cfg, workers, harness.WithLogger(logger.WithName("runner")))
	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("all rounds finished", "rounds", cfg.Rounds, "lastRound", runner.CurrentRound())
	return nil
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new base58 ed25519 key pair for a worker config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := harness.GenerateSigner()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "private: %s\npublic:  %s\n", s.PrivateKey(), s.PublicKey())
			return err
		},
	}
}
