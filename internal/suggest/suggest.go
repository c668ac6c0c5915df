// Package suggest produces short commit-message labels for auto-push
// jobs. The provider is deliberately opaque to its callers: the recurring
// loop treats any non-empty string as valid and falls back to a generic
// label on failure.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reposense/internal/gitexec"
)

// Provider yields a commit-message suggestion for a workspace.
type Provider interface {
	Suggest(ctx context.Context, workspace string) (string, error)
}

// FallbackLabel is used when a provider errors or returns nothing.
func FallbackLabel(now time.Time) string {
	return "Auto-commit " + now.Format("2006-01-02 15:04")
}

// StatusProvider derives a label from the working-tree status.
type StatusProvider struct {
	runner *gitexec.Runner
}

func NewStatusProvider(runner *gitexec.Runner) *StatusProvider {
	return &StatusProvider{runner: runner}
}

// Suggest summarizes the changed files, e.g. "Update 3 files: a.go, b.go, ...".
func (p *StatusProvider) Suggest(ctx context.Context, workspace string) (string, error) {
	st, err := p.runner.Status(ctx, workspace)
	if err != nil {
		return "", err
	}
	if st.Clean {
		return "", fmt.Errorf("no changes in %s", workspace)
	}
	names := st.Files
	more := ""
	if len(names) > 3 {
		more = ", ..."
		names = names[:3]
	}
	noun := "files"
	if len(st.Files) == 1 {
		noun = "file"
	}
	return fmt.Sprintf("Update %d %s: %s%s", len(st.Files), noun, strings.Join(names, ", "), more), nil
}
