package gitexec

import (
	"context"
	"strings"
	"testing"
	"time"
)

// Porcelain output is column-aligned; the executor must not eat the
// status-column space at the start of the first line.
func TestExecutePreservesLeadingColumnSpace(t *testing.T) {
	e := NewOSExecutor("printf", 5*time.Second)

	stdout, _, err := e.Execute(context.Background(), t.TempDir(), " M a\n M main.go\n")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(stdout, " M ") {
		t.Fatalf("leading column space was stripped: %q", stdout)
	}
	if stdout != " M a\n M main.go" {
		t.Fatalf("expected trailing newline trimmed only, got %q", stdout)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	e := NewOSExecutor("sleep", 50*time.Millisecond)

	if _, _, err := e.Execute(context.Background(), t.TempDir(), "5"); err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}
