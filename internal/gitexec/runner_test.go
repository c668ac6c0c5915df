package gitexec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"reposense/internal/models"
)

// scriptedExecutor returns canned results per leading git subcommand and
// records every invocation.
type scriptedExecutor struct {
	results map[string]scriptResult
	calls   [][]string
}

type scriptResult struct {
	stdout string
	stderr string
	err    error
}

func (e *scriptedExecutor) Execute(_ context.Context, _ string, args ...string) (string, string, error) {
	e.calls = append(e.calls, args)
	res, ok := e.results[args[0]]
	if !ok {
		return "", "", nil
	}
	return res.stdout, res.stderr, res.err
}

func (e *scriptedExecutor) sawCommand(name string) bool {
	for _, call := range e.calls {
		if call[0] == name {
			return true
		}
	}
	return false
}

func newTestRunner(exec Executor) *Runner {
	return NewRunner(exec, zerolog.Nop())
}

func TestCommitPushSuccess(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"commit": {stdout: "[main abc1234] fix\n 2 files changed, 5 insertions(+), 1 deletion(-)"},
	}}
	r := newTestRunner(exec)

	out := r.CommitPush(context.Background(), "/repo", models.Payload{Message: "fix", AutoPush: true})
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.FilesChanged != 2 || out.Insertions != 5 || out.Deletions != 1 {
		t.Fatalf("wrong counts: %+v", out)
	}
	if !exec.sawCommand("push") {
		t.Fatalf("expected a push, calls: %v", exec.calls)
	}
	if !strings.Contains(out.Message, "pushed") {
		t.Fatalf("message should note the push: %q", out.Message)
	}
}

func TestCommitPushWithoutAutoPush(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"commit": {stdout: "[main abc1234] fix\n 1 file changed, 1 insertion(+)"},
	}}
	r := newTestRunner(exec)

	out := r.CommitPush(context.Background(), "/repo", models.Payload{Message: "fix"})
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if exec.sawCommand("push") {
		t.Fatalf("push should not run without auto_push")
	}
}

func TestCommitPushNothingToCommit(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"commit": {stdout: "On branch main\nnothing to commit, working tree clean", err: errors.New("exit status 1")},
	}}
	r := newTestRunner(exec)

	out := r.CommitPush(context.Background(), "/repo", models.Payload{Message: "fix", AutoPush: true})
	if !out.Success {
		t.Fatalf("nothing-to-commit must be benign, got %+v", out)
	}
	if exec.sawCommand("push") {
		t.Fatalf("no push expected when there was nothing to commit")
	}
}

func TestPushRejectedNonFastForward(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"push": {stderr: "! [rejected]  main -> main (non-fast-forward)\nerror: failed to push some refs", err: errors.New("exit status 1")},
	}}
	r := newTestRunner(exec)

	out := r.Push(context.Background(), "/repo", models.Payload{})
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.ErrorKind != models.ErrKindNonFastForward {
		t.Fatalf("got kind %q", out.ErrorKind)
	}
	if !out.PullNeeded {
		t.Fatalf("expected pull_needed on unforced non-fast-forward rejection")
	}
}

func TestForcedPushRejectionDoesNotFlagPull(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"push": {stderr: "! [rejected]  main -> main (non-fast-forward)", err: errors.New("exit status 1")},
	}}
	r := newTestRunner(exec)

	out := r.Push(context.Background(), "/repo", models.Payload{ForcePush: true})
	if out.Success || out.PullNeeded {
		t.Fatalf("forced push rejection must not suggest a pull: %+v", out)
	}
	last := exec.calls[len(exec.calls)-1]
	if last[len(last)-1] != "--force" {
		t.Fatalf("expected --force, got %v", last)
	}
}

func TestSyncPullsThenPushes(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{}}
	r := newTestRunner(exec)

	out := r.Sync(context.Background(), "/repo", models.Payload{Rebase: true})
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if len(exec.calls) != 2 || exec.calls[0][0] != "pull" || exec.calls[1][0] != "push" {
		t.Fatalf("expected pull then push, got %v", exec.calls)
	}
	if exec.calls[0][1] != "--rebase" {
		t.Fatalf("expected rebase pull, got %v", exec.calls[0])
	}
}

func TestTimeoutClassifiesAsUnknown(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"push": {err: ErrTimeout},
	}}
	r := newTestRunner(exec)

	out := r.Push(context.Background(), "/repo", models.Payload{})
	if out.Success {
		t.Fatalf("expected failure")
	}
	if out.ErrorKind != models.ErrKindUnknown {
		t.Fatalf("timeouts surface as unknown, got %q", out.ErrorKind)
	}
	if !strings.Contains(out.Message, "timed out") {
		t.Fatalf("message should mention the timeout: %q", out.Message)
	}
}

func TestRunUnknownKind(t *testing.T) {
	r := newTestRunner(&scriptedExecutor{})
	out := r.Run(context.Background(), "rebase_everything", "/repo", models.Payload{})
	if out.Success || out.ErrorKind != models.ErrKindUnknown {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}
