package worker

import (
	"context"
	"fmt"

	"github.com/orca-swarm/summarizer-worker/pkg/store"
)

// TaskRequest mirrors the JSON body of POST /worker-task/{roundNumber}.
// Fields are decoded loosely by the server so that absent and null values can
// both be rejected; this type documents the wire shape.
type TaskRequest struct {
	TaskID           string `json:"task_id"`
	RoundNumber      any    `json:"round_number"`
	RepoURL          string `json:"repo_url"`
	PodcallSignature string `json:"podcall_signature"`
}

// requiredFields must be present and non-null in every task request.
var requiredFields = []string{"task_id", "round_number", "repo_url", "podcall_signature"}

// TaskParams is what the summarizer receives for one task.
type TaskParams struct {
	TaskID      string
	RoundNumber int
	RepoURL     string
	// DB is the storage handle obtained on the request goroutine. It may be nil
	// when the worker runs without persistent storage.
	DB DB
}

// TaskResult is the summarizer's outcome, of the shape
// {success: bool, result: {data: {pr_url}, error}}. Any nested key may be absent.
type TaskResult map[string]any

// Success reports the top-level success flag; absent or non-bool is false.
func (r TaskResult) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

func (r TaskResult) inner() map[string]any {
	m, _ := r["result"].(map[string]any)
	return m
}

// PRURL returns result.data.pr_url, or nil when absent.
func (r TaskResult) PRURL() *string {
	data, _ := r.inner()["data"].(map[string]any)
	if u, ok := data["pr_url"].(string); ok {
		return &u
	}
	return nil
}

// ErrorMessage returns result.error, or "" when absent or null. Non-string
// errors are formatted with fmt.Sprint so the middle server still gets a reason.
func (r TaskResult) ErrorMessage() string {
	switch v := r.inner()["error"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Summarizer performs the repository summarization for one task.
type Summarizer interface {
	HandleTaskCreation(ctx context.Context, p TaskParams) (TaskResult, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, p TaskParams) (TaskResult, error)

// HandleTaskCreation calls f.
func (f SummarizerFunc) HandleTaskCreation(ctx context.Context, p TaskParams) (TaskResult, error) {
	return f(ctx, p)
}

// DB is the persistent storage handle passed to summarizers.
type DB interface {
	PutTask(rec store.TaskRecord) error
	PutSubmission(sub store.Submission) error
	Submission(round int) (*store.Submission, error)
}

// DBProvider returns the storage handle. The server calls it on the request
// goroutine before any work is handed to the pool.
type DBProvider func(ctx context.Context) (DB, error)

// StaticDB returns a DBProvider that always yields db.
func StaticDB(db DB) DBProvider {
	return func(context.Context) (DB, error) { return db, nil }
}

// StatusResponse is returned when a task has been accepted for async processing.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
