// Package harness drives workers through task rounds the way the task runner
// does: each round sends the task, checks the resulting pull request with the
// middle server and collects the signed submission.
package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// RoundState holds what the stages learn during one round.
type RoundState struct {
	PRURLs         map[string]string
	SubmissionData map[string]map[string]any
}

func newRoundState() *RoundState {
	return &RoundState{
		PRURLs:         make(map[string]string),
		SubmissionData: make(map[string]map[string]any),
	}
}

// Runner holds session state and runs stages against workers.
type Runner struct {
	taskID     string
	middleURL  string
	startRound int
	numRounds  int
	workers    []*Worker
	stages     []Stage
	httpClient *http.Client
	logger     logr.Logger
	newUUID    func() string

	currentRound int
	repoURL      string
	rounds       map[string]*RoundState
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithHTTPClient sets the HTTP client used by stages.
func WithHTTPClient(c *http.Client) RunnerOption {
	return func(r *Runner) { r.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithStages replaces the default stage list.
func WithStages(stages ...Stage) RunnerOption {
	return func(r *Runner) { r.stages = stages }
}

// NewRunner creates a runner for cfg and workers.
func NewRunner(cfg *Config, workers []*Worker, opts ...RunnerOption) *Runner {
	r := &Runner{
		taskID:       cfg.TaskID,
		middleURL:    cfg.MiddleServerURL,
		startRound:   cfg.StartRound,
		numRounds:    cfg.Rounds,
		workers:      workers,
		stages:       DefaultStages(),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logr.Discard(),
		newUUID:      uuid.NewString,
		currentRound: cfg.StartRound,
		repoURL:      cfg.RepoURL,
		rounds:       make(map[string]*RoundState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TaskID returns the task under test.
func (r *Runner) TaskID() string { return r.taskID }

// MiddleServerURL returns the middle server base URL.
func (r *Runner) MiddleServerURL() string { return r.middleURL }

// CurrentRound returns the round being run.
func (r *Runner) CurrentRound() int { return r.currentRound }

// RepoURL returns the repository assigned by the middle server, if any.
func (r *Runner) RepoURL() string { return r.repoURL }

// SetRepoURL records the repository workers should summarize.
func (r *Runner) SetRepoURL(u string) { r.repoURL = u }

// StartRound makes n the current round and resets its round-scoped state.
func (r *Runner) StartRound(n int) {
	r.currentRound = n
	r.rounds[strconv.Itoa(n)] = newRoundState()
}

// Round returns the state for round n, creating it if needed.
func (r *Runner) Round(n int) *RoundState {
	key := strconv.Itoa(n)
	rs, ok := r.rounds[key]
	if !ok {
		rs = newRoundState()
		r.rounds[key] = rs
	}
	return rs
}

// PRURL returns the pull request recorded for worker in the current round.
func (r *Runner) PRURL(worker string) (string, bool) {
	u, ok := r.Round(r.currentRound).PRURLs[worker]
	return u, ok
}

// SetPRURL records worker's pull request for the current round.
func (r *Runner) SetPRURL(worker, prURL string) {
	r.Round(r.currentRound).PRURLs[worker] = prURL
}

// SubmissionData returns the signed submission collected from worker this round.
func (r *Runner) SubmissionData(worker string) (map[string]any, bool) {
	d, ok := r.Round(r.currentRound).SubmissionData[worker]
	return d, ok
}

// SetSubmissionData stores worker's signed submission for the current round.
func (r *Runner) SetSubmissionData(worker string, data map[string]any) {
	r.Round(r.currentRound).SubmissionData[worker] = data
}

// Run executes every round, and within each round every stage for every
// worker in order. A stage error stops the run.
func (r *Runner) Run(ctx context.Context) error {
	for i := 0; i < r.numRounds; i++ {
		round := r.startRound + i
		r.StartRound(round)
		log := r.logger.WithValues("round", round)
		log.Info("starting round")

		for _, st := range r.stages {
			for _, w := range r.workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := r.runStep(ctx, st, w)
				if err != nil {
					return fmt.Errorf("round %d: %s for %s: %w", round, st.Name(), w.Name, err)
				}
				log.Info("stage finished", "stage", st.Name(), "worker", w.Name,
					"success", res.Success, "message", res.Message)
			}
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, st Stage, w *Worker) (*Result, error) {
	data, err := st.Prepare(ctx, r, w)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	res, err := st.Execute(ctx, r, w, data)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return res, nil
}

// doJSON sends payload (nil for no body) and decodes a JSON object response.
// An empty response body yields a nil map.
func (r *Runner) doJSON(ctx context.Context, method, url string, payload any) (int, map[string]any, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, out, nil
}
