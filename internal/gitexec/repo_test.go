package gitexec

import (
	"context"
	"errors"
	"testing"
)

func TestDetectNotARepo(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"rev-parse": {stderr: "fatal: not a git repository (or any of the parent directories): .git", err: errors.New("exit status 128")},
	}}
	r := newTestRunner(exec)

	info, err := r.Detect(context.Background(), "/tmp/empty")
	if err != nil {
		t.Fatalf("missing repo is not an error: %v", err)
	}
	if info.IsRepo {
		t.Fatalf("expected is_repo=false")
	}
}

func TestStatusParsesPorcelain(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"status": {stdout: " M main.go\n?? notes.txt"},
	}}
	r := newTestRunner(exec)

	st, err := r.Status(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Clean {
		t.Fatalf("expected dirty tree")
	}
	if len(st.Files) != 2 || st.Files[0] != "main.go" || st.Files[1] != "notes.txt" {
		t.Fatalf("unexpected files: %v", st.Files)
	}
}

// A short-named file in the first porcelain line must not be dropped.
func TestStatusKeepsShortFirstEntry(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{
		"status": {stdout: " M a\n M main.go"},
	}}
	r := newTestRunner(exec)

	st, err := r.Status(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(st.Files) != 2 || st.Files[0] != "a" || st.Files[1] != "main.go" {
		t.Fatalf("unexpected files: %v", st.Files)
	}
}

func TestStatusCleanTree(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]scriptResult{}}
	r := newTestRunner(exec)

	st, err := r.Status(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Clean || len(st.Files) != 0 {
		t.Fatalf("expected clean tree, got %+v", st)
	}
}
