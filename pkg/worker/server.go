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

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orca-swarm/summarizer-worker/pkg/store"
)

const processingStatus = "Task is being processed"

// Server exposes the worker task endpoint and hands work to the pool.
type Server struct {
	summarizer Summarizer
	pool       *Pool
	reporter   *Reporter
	db         DBProvider
	addr       string
	testMode   bool
	rateLimit  int
	logger     logr.Logger
	metrics    *Metrics
	gatherer   prometheus.Gatherer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithTestMode runs the summarizer inline and returns its result as the response.
func WithTestMode(enabled bool) ServerOption {
	return func(s *Server) { s.testMode = enabled }
}

// WithPool sets the background executor used in async mode.
func WithPool(p *Pool) ServerOption {
	return func(s *Server) { s.pool = p }
}

// WithReporter sets the completion callback target used in async mode.
func WithReporter(r *Reporter) ServerOption {
	return func(s *Server) { s.reporter = r }
}

// WithDB sets the storage provider.
func WithDB(p DBProvider) ServerOption {
	return func(s *Server) { s.db = p }
}

// WithRateLimit limits task requests per client IP per minute. Zero disables it.
func WithRateLimit(perMinute int) ServerOption {
	return func(s *Server) { s.rateLimit = perMinute }
}

// WithMetrics records request metrics and serves gatherer on /metrics.
func WithMetrics(m *Metrics, gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// NewServer creates a worker server around summarizer.
func NewServer(summarizer Summarizer, opts ...ServerOption) *Server {
	s := &Server{
		summarizer: summarizer,
		addr:       ":8080",
		logger:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = NewPool(DefaultPoolSize, WithPoolLogger(s.logger), WithPoolMetrics(s.metrics))
	}
	if s.reporter == nil {
		s.reporter = NewReporter(NewClient(DefaultMiddleServerURL), WithReporterLogger(s.logger), WithReporterMetrics(s.metrics))
	}
	return s
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
		}
		r.Post("/worker-task/{roundNumber}", s.startTask)
	})
	r.Get("/submission/{roundNumber}", s.getSubmission)
	return r
}

// Name identifies the server as an application module.
func (s *Server) Name() string { return "worker" }

// Run listens until ctx is cancelled, then shuts the HTTP server down and
// drains the pool.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("worker listening", "addr", s.addr, "testMode", s.testMode)
	if err := serveHTTP(ctx, srv, s.logger); err != nil {
		return err
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := s.pool.Close(drainCtx); err != nil {
		return fmt.Errorf("draining pool: %w", err)
	}
	return nil
}

// serveHTTP runs srv until ctx is cancelled and then shuts it down.
func serveHTTP(ctx context.Context, srv *http.Server, logger logr.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "addr", srv.Addr)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server shutdown error")
	}
	return nil
}

// startTask handles POST /worker-task/{roundNumber}.
func (s *Server) startTask(w http.ResponseWriter, r *http.Request) {
	roundParam := chi.URLParam(r, "roundNumber")
	log := s.logger.WithValues("round", roundParam, "requestID", middleware.GetReqID(r.Context()))
	log.Info("task started")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		s.metrics.rejected("invalid_body")
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	log.Info("task data", "data", data)

	for _, field := range requiredFields {
		if data[field] == nil {
			s.metrics.rejected("missing_field")
			writeError(w, http.StatusUnauthorized, "Missing data", field)
			return
		}
	}

	round, err := strconv.Atoi(roundParam)
	if err != nil {
		s.metrics.rejected("invalid_round")
		writeError(w, http.StatusBadRequest, "invalid round number", err.Error())
		return
	}
	if bodyRound := fmt.Sprint(data["round_number"]); bodyRound != roundParam {
		log.Info("round number in body differs from path", "bodyRound", bodyRound)
	}

	taskID := stringField(data, "task_id")
	repoURL := stringField(data, "repo_url")
	signature := stringField(data, "podcall_signature")

	// The storage handle is obtained here, before any work leaves this goroutine.
	var db DB
	if s.db != nil {
		db, err = s.db(r.Context())
		if err != nil {
			log.Error(err, "failed to open storage")
			writeError(w, http.StatusInternalServerError, "storage unavailable", "")
			return
		}
	}

	params := TaskParams{
		TaskID:      taskID,
		RoundNumber: round,
		RepoURL:     repoURL,
		DB:          db,
	}

	if s.testMode {
		s.metrics.received("sync")
		result, err := s.summarizer.HandleTaskCreation(r.Context(), params)
		if err != nil {
			log.Error(err, "summarizer failed", "taskID", taskID)
			writeError(w, http.StatusInternalServerError, "task failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	summarizer := s.summarizer
	future, err := s.pool.Submit(func(ctx context.Context) (TaskResult, error) {
		return summarizer.HandleTaskCreation(ctx, params)
	})
	if err != nil {
		log.Error(err, "failed to submit task", "taskID", taskID)
		writeError(w, http.StatusServiceUnavailable, "worker is shutting down", "")
		return
	}
	future.AddDoneCallback(s.reporter.Callback(taskID, signature, round))
	s.metrics.received("async")
	log.Info("task submitted", "taskID", taskID)

	writeJSON(w, http.StatusOK, StatusResponse{Status: processingStatus})
}

// getSubmission handles GET /submission/{roundNumber}.
func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(chi.URLParam(r, "roundNumber"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round number", err.Error())
		return
	}
	if s.db == nil {
		writeError(w, http.StatusNotFound, "No submission", "")
		return
	}
	db, err := s.db(r.Context())
	if err != nil {
		s.logger.Error(err, "failed to open storage")
		writeError(w, http.StatusInternalServerError, "storage unavailable", "")
		return
	}

	sub, err := db.Submission(round)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No submission", "")
			return
		}
		s.logger.Error(err, "failed to read submission", "round", round)
		writeError(w, http.StatusInternalServerError, "failed to read submission", "")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func stringField(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return fmt.Sprint(data[key])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal encoding error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
