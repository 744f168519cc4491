package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

// Reporter forwards finished task outcomes to the middle server. It is meant to
// run as a Future's done callback and never lets a failure escape.
type Reporter struct {
	client  MiddleServer
	logger  logr.Logger
	metrics *Metrics
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithReporterLogger sets the logger.
func WithReporterLogger(l logr.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = l }
}

// WithReporterMetrics sets the metrics sink.
func WithReporterMetrics(m *Metrics) ReporterOption {
	return func(r *Reporter) { r.metrics = m }
}

// NewReporter creates a Reporter that delivers through client.
func NewReporter(client MiddleServer, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		client: client,
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Callback returns a done callback bound to the values captured at submission.
func (r *Reporter) Callback(taskID, signature string, roundNumber int) func(*Future) {
	return func(f *Future) {
		r.Report(f, taskID, signature, roundNumber)
	}
}

// Report waits for f and posts its outcome. Errors are logged with their type
// and stack; nothing is retried.
func (r *Reporter) Report(f *Future, taskID, signature string, roundNumber int) {
	log := r.logger.WithValues("taskID", taskID, "round", roundNumber)

	result, err := f.Result()
	if err != nil {
		r.metrics.reportFailed("result")
		r.logFailure(log, err)
		return
	}
	log.Info("task finished", "result", map[string]any(result))

	payload := AddTodoPRRequest{
		PRURL:       result.PRURL(),
		Signature:   signature,
		RoundNumber: roundNumber,
		Success:     result.Success(),
		Message:     result.ErrorMessage(),
	}
	if err := r.client.AddTodoPR(context.Background(), taskID, payload); err != nil {
		r.metrics.reportFailed("post")
		r.logFailure(log, err)
		return
	}
	r.metrics.reportSent()
}

func (r *Reporter) logFailure(log logr.Logger, err error) {
	kv := []any{"errorType", fmt.Sprintf("%T", rootCause(err))}
	var pe *PanicError
	if errors.As(err, &pe) {
		kv = append(kv, "panicStack", string(pe.Stack))
	}
	log.Error(err, "failed to send result", kv...)
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
