package summarizer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// ExecOptions configures command execution.
type ExecOptions struct {
	Dir string   // Working directory
	Env []string // Extra environment variables (KEY=VALUE)
}

// ExecResult holds the outcome of a command execution.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandExecutor abstracts os/exec for testing.
type CommandExecutor interface {
	// Run returns an ExecResult for any command that ran, including a non-zero
	// exit. It returns an error only when the command could not run at all.
	Run(ctx context.Context, name string, args []string, opts ExecOptions) (*ExecResult, error)
}

type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, name string, args []string, opts ExecOptions) (*ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, err
	}
	return res, nil
}
