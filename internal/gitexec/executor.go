package gitexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout marks an invocation that exceeded its wall-clock budget.
var ErrTimeout = errors.New("git invocation timed out")

// Executor runs a single git invocation against a working directory.
// It exists as an interface so composite procedures can be tested against
// a scripted fake.
type Executor interface {
	Execute(ctx context.Context, dir string, args ...string) (stdout string, stderr string, err error)
}

// OSExecutor shells out to the git binary via os/exec.
type OSExecutor struct {
	Bin     string
	Timeout time.Duration
}

// NewOSExecutor builds an executor for the given binary and per-call timeout.
func NewOSExecutor(bin string, timeout time.Duration) *OSExecutor {
	if bin == "" {
		bin = "git"
	}
	return &OSExecutor{Bin: bin, Timeout: timeout}
}

// Execute runs git with the given args. Every call returns within the
// configured timeout; exceeding it yields ErrTimeout.
//
// Only trailing newlines are stripped from stdout: porcelain formats are
// column-aligned and a leading space on the first line is significant.
func (e *OSExecutor) Execute(ctx context.Context, dir string, args ...string) (string, string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Bin, args...)
	cmd.Dir = dir

	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	err := cmd.Run()
	stdout := strings.TrimRight(out.String(), "\r\n")
	stderr := strings.TrimSpace(errBuf.String())

	if ctx.Err() != nil {
		return stdout, stderr, ErrTimeout
	}
	return stdout, stderr, err
}
