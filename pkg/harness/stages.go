package harness

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strconv"
)

const skippedMissingPR = "Skipped due to missing PR URL"

// Stage is one step a worker goes through each round. Prepare builds the
// stage payload; a nil payload tells Execute to skip.
type Stage interface {
	Name() string
	Prepare(ctx context.Context, r *Runner, w *Worker) (map[string]any, error)
	Execute(ctx context.Context, r *Runner, w *Worker, data map[string]any) (*Result, error)
}

// Result is the outcome of one stage execution.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// DefaultStages returns worker_task, worker_check and worker_submission in order.
func DefaultStages() []Stage {
	return []Stage{WorkerTask{}, WorkerCheck{}, WorkerSubmission{}}
}

// resultFromBody maps a response body onto a Result, keeping the body as data.
func resultFromBody(body map[string]any) *Result {
	ok, _ := body["success"].(bool)
	return &Result{Success: ok, Message: messageOf(body), Data: body}
}

// messageOf returns body.message, falling back to body.error.
func messageOf(body map[string]any) string {
	if m, ok := body["message"].(string); ok {
		return m
	}
	if m, ok := body["error"].(string); ok {
		return m
	}
	return ""
}

// WorkerTask sends the round's task to the worker.
type WorkerTask struct{}

// Name implements Stage.
func (WorkerTask) Name() string { return "worker_task" }

// Prepare builds the task request, including a podcall signature over
// {taskId, roundNumber, uuid} made with the worker's staking key.
func (WorkerTask) Prepare(_ context.Context, r *Runner, w *Worker) (map[string]any, error) {
	podcall, err := w.Staking.Sign(map[string]any{
		"taskId":      r.TaskID(),
		"roundNumber": r.CurrentRound(),
		"uuid":        r.newUUID(),
	})
	if err != nil {
		return nil, fmt.Errorf("signing podcall: %w", err)
	}
	return map[string]any{
		"taskId":            r.TaskID(),
		"task_id":           r.TaskID(),
		"round_number":      strconv.Itoa(r.CurrentRound()),
		"repo_url":          r.RepoURL(),
		"podcall_signature": podcall,
	}, nil
}

// Execute posts the task. 401 and 409 are expected outcomes and reported as
// success. A successful body carrying a non-null pr_url is recorded for the
// round.
func (WorkerTask) Execute(ctx context.Context, r *Runner, w *Worker, data map[string]any) (*Result, error) {
	if r.RepoURL() == "" {
		r.logger.Info("no repo url found, continuing", "worker", w.Name)
		return &Result{Success: true, Message: "No repo url found"}, nil
	}

	url := fmt.Sprintf("%s/worker-task/%d", w.URL, r.CurrentRound())
	status, body, err := r.doJSON(ctx, http.MethodPost, url, data)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusConflict {
		r.logger.Info("worker declined task, continuing", "worker", w.Name, "status", status)
		return &Result{Success: true, Message: messageOf(body)}, nil
	}

	res := resultFromBody(body)
	// Any non-null pr_url is recorded; later stages only check presence.
	if prURL, ok := body["pr_url"]; ok && prURL != nil && res.Success {
		r.SetPRURL(w.Name, fmt.Sprint(prURL))
	}
	return res, nil
}

// WorkerCheck asks the middle server to validate the worker's pull request.
type WorkerCheck struct{}

// Name implements Stage.
func (WorkerCheck) Name() string { return "worker_check" }

// Prepare returns nil when the worker has no pull request this round.
func (WorkerCheck) Prepare(_ context.Context, r *Runner, w *Worker) (map[string]any, error) {
	prURL, ok := r.PRURL(w.Name)
	if !ok {
		return nil, nil
	}
	return map[string]any{
		"stakingKey":     w.StakingPublicKey(),
		"roundNumber":    r.CurrentRound(),
		"githubUsername": w.GithubUsername(),
		"prUrl":          prURL,
	}, nil
}

// Execute posts the check. 409 means nothing was eligible and is not an
// error. On success the repository named by the middle server becomes the
// repo for subsequent tasks.
func (WorkerCheck) Execute(ctx context.Context, r *Runner, w *Worker, data map[string]any) (*Result, error) {
	if data == nil {
		return &Result{Success: true, Message: skippedMissingPR}, nil
	}

	status, body, err := r.doJSON(ctx, http.MethodPost, r.MiddleServerURL()+"/summarizer/worker/check-todo", data)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict {
		r.logger.Info("no eligible todos, continuing", "worker", w.Name, "message", messageOf(body))
		return &Result{Success: true, Message: messageOf(body)}, nil
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("check-todo returned status %d: %s", status, messageOf(body))
	}

	res := resultFromBody(body)
	if res.Success {
		owner, _ := body["repo_owner"].(string)
		name, _ := body["repo_name"].(string)
		r.SetRepoURL(fmt.Sprintf("https://github.com/%s/%s", owner, name))
	}
	return res, nil
}

// WorkerSubmission collects and signs the worker's submission for the round.
type WorkerSubmission struct{}

// Name implements Stage.
func (WorkerSubmission) Name() string { return "worker_submission" }

// Prepare fetches the worker's submission and signs it as an audit payload.
// It returns nil when the worker has no pull request this round.
func (WorkerSubmission) Prepare(ctx context.Context, r *Runner, w *Worker) (map[string]any, error) {
	if _, ok := r.PRURL(w.Name); !ok {
		r.logger.Info("no pr url recorded, continuing", "worker", w.Name)
		return nil, nil
	}

	url := fmt.Sprintf("%s/submission/%d", w.URL, r.CurrentRound())
	status, submission, err := r.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("fetching submission returned status %d: %s", status, messageOf(submission))
	}

	payload := map[string]any{
		"taskId":      r.TaskID(),
		"roundNumber": r.CurrentRound(),
		"stakingKey":  w.StakingPublicKey(),
		"pubKey":      w.PublicKey(),
		"action":      "audit",
	}
	maps.Copy(payload, submission)
	signature, err := w.Staking.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("signing submission: %w", err)
	}

	out := maps.Clone(submission)
	if out == nil {
		out = make(map[string]any)
	}
	out["signature"] = signature
	out["stakingKey"] = w.StakingPublicKey()
	out["pubKey"] = w.PublicKey()
	return out, nil
}

// Execute stores the signed submission in the round's state.
func (WorkerSubmission) Execute(_ context.Context, r *Runner, w *Worker, data map[string]any) (*Result, error) {
	if data == nil {
		return &Result{Success: true, Message: skippedMissingPR}, nil
	}
	r.SetSubmissionData(w.Name, data)
	return &Result{Success: true, Data: data}, nil
}
