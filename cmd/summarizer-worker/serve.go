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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/orca-swarm/summarizer-worker/pkg/app"
	"github.com/orca-swarm/summarizer-worker/pkg/logging"
	"github.com/orca-swarm/summarizer-worker/pkg/store"
	"github.com/orca-swarm/summarizer-worker/pkg/summarizer"
	"github.com/orca-swarm/summarizer-worker/pkg/worker"
)

// ServeCmd runs the worker HTTP server.
type ServeCmd struct {
	ListenAddr      string   `help:"Task endpoint listen address" default:":8080" env:"SUMMARIZER_LISTEN_ADDR"`
	MetricsAddr     string   `help:"Serve metrics on a separate listener instead of the task endpoint" env:"SUMMARIZER_METRICS_ADDR"`
	TestMode        bool     `help:"Run tasks inline and return the result in the response" env:"TEST_MODE"`
	MiddleServerURL string   `help:"Middle server that receives task results" default:"http://host.docker.internal:30017" env:"SUMMARIZER_MIDDLE_SERVER_URL"`
	DBPath          string   `help:"Path to the bbolt database" default:"summarizer.db" env:"SUMMARIZER_DB_PATH"`
	PoolSize        int      `help:"Concurrent summarization slots" default:"2" env:"SUMMARIZER_POOL_SIZE"`
	RateLimit       int      `help:"Task requests per client IP per minute, 0 disables" default:"0" env:"SUMMARIZER_RATE_LIMIT"`
	WorkDir         string   `help:"Directory repositories are cloned into" env:"SUMMARIZER_WORK_DIR"`
	AgentCommand    string   `help:"Command that summarizes the cloned repository" default:"summarize-repo" env:"SUMMARIZER_AGENT_COMMAND"`
	AgentArgs       []string `help:"Arguments for the agent command" env:"SUMMARIZER_AGENT_ARGS"`
	GithubToken     string   `help:"GitHub token for cloning and PR verification" env:"GITHUB_TOKEN"`
	GithubUsername  string   `help:"GitHub username recorded with submissions" env:"GITHUB_USERNAME"`
	VerifyPR        bool     `help:"Check reported pull requests on GitHub" default:"true" negatable:"" env:"SUMMARIZER_VERIFY_PR"`

	GithubAppID          int64  `help:"GitHub App ID used for PR verification" env:"SUMMARIZER_GITHUB_APP_ID"`
	GithubInstallationID int64  `help:"GitHub App installation ID" env:"SUMMARIZER_GITHUB_INSTALLATION_ID"`
	GithubPrivateKeyPath string `help:"Path to the GitHub App private key" env:"SUMMARIZER_GITHUB_PRIVATE_KEY_PATH"`
}

func (c *ServeCmd) validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("pool-size must be at least 1, got %d", c.PoolSize)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative, got %d", c.RateLimit)
	}
	if c.githubAppSet() {
		if c.GithubAppID == 0 || c.GithubInstallationID == 0 || c.GithubPrivateKeyPath == "" {
			return fmt.Errorf("github-app-id, github-installation-id, and github-private-key-path must all be set together")
		}
	}
	return nil
}

func (c *ServeCmd) githubAppSet() bool {
	return c.GithubAppID != 0 || c.GithubInstallationID != 0 || c.GithubPrivateKeyPath != ""
}

func (c *ServeCmd) verifier() (summarizer.PRVerifier, error) {
	if c.githubAppSet() {
		return summarizer.NewGitHubAppVerifier(c.GithubAppID, c.GithubInstallationID, c.GithubPrivateKeyPath)
	}
	return summarizer.NewGitHubVerifier(c.GithubToken), nil
}

func (c *ServeCmd) Run(cli *CLI) error {
	if err := c.validate(); err != nil {
		return err
	}

	logger, sync, err := logging.New(cli.Log.options())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer sync()

	st, err := store.Open(c.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error(err, "closing store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := worker.NewMetrics(reg)

	pool := worker.NewPool(c.PoolSize,
		worker.WithPoolLogger(logger.WithName("pool")),
		worker.WithPoolMetrics(metrics),
	)
	client := worker.NewClient(c.MiddleServerURL, worker.WithClientLogger(logger.WithName("middle-server")))
	reporter := worker.NewReporter(client,
		worker.WithReporterLogger(logger.WithName("reporter")),
		worker.WithReporterMetrics(metrics),
	)

	sumOpts := []summarizer.Option{
		summarizer.WithAgentCommand(c.AgentCommand, c.AgentArgs...),
		summarizer.WithGitHubToken(c.GithubToken),
		summarizer.WithGitHubUsername(c.GithubUsername),
		summarizer.WithLogger(logger.WithName("summarizer")),
	}
	if c.WorkDir != "" {
		sumOpts = append(sumOpts, summarizer.WithWorkDir(c.WorkDir))
	}
	if c.VerifyPR {
		v, err := c.verifier()
		if err != nil {
			return err
		}
		sumOpts = append(sumOpts, summarizer.WithVerifier(v))
	}

	srvOpts := []worker.ServerOption{
		worker.WithAddr(c.ListenAddr),
		worker.WithLogger(logger.WithName("server")),
		worker.WithTestMode(c.TestMode),
		worker.WithPool(pool),
		worker.WithReporter(reporter),
		worker.WithDB(worker.StaticDB(st)),
		worker.WithRateLimit(c.RateLimit),
	}
	modules := []app.Module{}
	if c.MetricsAddr != "" {
		srvOpts = append(srvOpts, worker.WithMetrics(metrics, nil))
		modules = append(modules, worker.NewMetricsServer(c.MetricsAddr, reg, logger.WithName("metrics")))
	} else {
		srvOpts = append(srvOpts, worker.WithMetrics(metrics, reg))
	}
	modules = append(modules, worker.NewServer(summarizer.New(sumOpts...), srvOpts...))

	a, err := app.New(logger, modules...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.Run(ctx)
}
