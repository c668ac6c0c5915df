package gitexec

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"reposense/internal/models"
)

// Outcome is the structured result of one composite procedure.
type Outcome struct {
	Success      bool
	Message      string
	ErrorKind    string
	FilesChanged int
	Insertions   int
	Deletions    int
	PullNeeded   bool
}

// Runner executes composite git procedures. It performs no retries; retry
// policy belongs to the scheduler and the conflict-resolution flow.
type Runner struct {
	exec Executor
	log  zerolog.Logger
}

// NewRunner builds a runner over the given executor.
func NewRunner(exec Executor, log zerolog.Logger) *Runner {
	return &Runner{exec: exec, log: log.With().Str("component", "gitexec").Logger()}
}

// Run dispatches a job kind to its composite procedure.
func (r *Runner) Run(ctx context.Context, kind, workspace string, p models.Payload) Outcome {
	switch kind {
	case models.KindCommitPush:
		return r.CommitPush(ctx, workspace, p)
	case models.KindPush:
		return r.Push(ctx, workspace, p)
	case models.KindSync:
		return r.Sync(ctx, workspace, p)
	default:
		return Outcome{ErrorKind: models.ErrKindUnknown, Message: fmt.Sprintf("unknown job kind %q", kind)}
	}
}

// CommitPush stages everything, commits with the payload message, and
// pushes when the payload asks for it. A clean working tree is a benign
// outcome, not a failure.
func (r *Runner) CommitPush(ctx context.Context, workspace string, p models.Payload) Outcome {
	if out := r.step(ctx, workspace, "add", "-A"); !out.Success {
		return out
	}

	stdout, stderr, err := r.exec.Execute(ctx, workspace, "commit", "-m", p.Message)
	if err != nil {
		kind := classifyErr(stdout+"\n"+stderr, err)
		if kind == models.ErrKindNothingToCommit {
			return Outcome{Success: true, Message: "nothing to commit, working tree clean"}
		}
		return failureOutcome(kind, stdout, stderr, err)
	}
	out := Outcome{Success: true, Message: firstLine(stdout)}
	out.FilesChanged, out.Insertions, out.Deletions = parseCommitSummary(stdout)

	if !p.AutoPush {
		return out
	}

	push := r.pushOnce(ctx, workspace, p.ForcePush)
	if !push.Success {
		push.FilesChanged, push.Insertions, push.Deletions = out.FilesChanged, out.Insertions, out.Deletions
		return push
	}
	out.Message = fmt.Sprintf("%s; pushed", out.Message)
	return out
}

// Push pushes the current branch, honoring the force flag.
func (r *Runner) Push(ctx context.Context, workspace string, p models.Payload) Outcome {
	return r.pushOnce(ctx, workspace, p.ForcePush)
}

// Sync pulls (rebase optional) then pushes.
func (r *Runner) Sync(ctx context.Context, workspace string, p models.Payload) Outcome {
	args := []string{"pull"}
	if p.Rebase {
		args = append(args, "--rebase")
	}
	if out := r.step(ctx, workspace, args...); !out.Success {
		return out
	}
	return r.pushOnce(ctx, workspace, p.ForcePush)
}

func (r *Runner) pushOnce(ctx context.Context, workspace string, force bool) Outcome {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	stdout, stderr, err := r.exec.Execute(ctx, workspace, args...)
	if err != nil {
		kind := classifyErr(stdout+"\n"+stderr, err)
		out := failureOutcome(kind, stdout, stderr, err)
		if kind == models.ErrKindNonFastForward && !force {
			out.PullNeeded = true
		}
		return out
	}
	return Outcome{Success: true, Message: "push completed"}
}

// step runs one invocation and folds any failure into an Outcome.
func (r *Runner) step(ctx context.Context, workspace string, args ...string) Outcome {
	stdout, stderr, err := r.exec.Execute(ctx, workspace, args...)
	if err != nil {
		r.log.Debug().Str("workspace", workspace).Strs("args", args).Str("stderr", stderr).Err(err).Msg("git step failed")
		return failureOutcome(classifyErr(stdout+"\n"+stderr, err), stdout, stderr, err)
	}
	return Outcome{Success: true, Message: firstLine(stdout)}
}

func classifyErr(output string, err error) string {
	if errors.Is(err, ErrTimeout) {
		return models.ErrKindUnknown
	}
	return Classify(output)
}

func failureOutcome(kind, stdout, stderr string, err error) Outcome {
	msg := firstLine(stderr)
	if msg == "" {
		msg = firstLine(stdout)
	}
	if msg == "" {
		msg = err.Error()
	}
	if errors.Is(err, ErrTimeout) {
		msg = "operation timed out: " + msg
	}
	return Outcome{ErrorKind: kind, Message: msg}
}

var commitSummaryRe = regexp.MustCompile(`(\d+) files? changed(?:, (\d+) insertions?\(\+\))?(?:, (\d+) deletions?\(-\))?`)

// parseCommitSummary extracts counts from git commit's summary line,
// e.g. " 3 files changed, 10 insertions(+), 2 deletions(-)".
func parseCommitSummary(out string) (files, ins, del int) {
	m := commitSummaryRe.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, 0
	}
	files, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		ins, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		del, _ = strconv.Atoi(m[3])
	}
	return files, ins, del
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
