// Package resolve applies a pick-a-side strategy to a workspace stuck in
// an unresolved merge. It never pushes; retrying the push is the caller's
// decision.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"reposense/internal/gitexec"
)

// Strategies for resolving conflicting paths.
const (
	StrategyOurs   = "ours"
	StrategyTheirs = "theirs"
)

var (
	ErrNoConflict      = errors.New("no conflict in progress")
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)

// Resolver completes an in-progress merge by taking one side of every
// conflicting path.
type Resolver struct {
	exec gitexec.Executor
	log  zerolog.Logger
}

func New(exec gitexec.Executor, log zerolog.Logger) *Resolver {
	return &Resolver{exec: exec, log: log.With().Str("component", "resolve").Logger()}
}

// Resolve picks the given side for all conflicting paths, stages the
// result, and completes the merge commit.
func (r *Resolver) Resolve(ctx context.Context, workspace, strategy string) error {
	if strategy != StrategyOurs && strategy != StrategyTheirs {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	paths, err := r.conflictingPaths(ctx, workspace)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return ErrNoConflict
	}

	args := append([]string{"checkout", "--" + strategy, "--"}, paths...)
	if _, stderr, err := r.exec.Execute(ctx, workspace, args...); err != nil {
		return fmt.Errorf("checkout --%s: %s: %w", strategy, firstLine(stderr), err)
	}
	if _, stderr, err := r.exec.Execute(ctx, workspace, "add", "-A"); err != nil {
		return fmt.Errorf("stage resolved paths: %s: %w", firstLine(stderr), err)
	}
	if _, stderr, err := r.exec.Execute(ctx, workspace, "commit", "--no-edit"); err != nil {
		return fmt.Errorf("complete merge commit: %s: %w", firstLine(stderr), err)
	}

	r.log.Info().Str("workspace", workspace).Str("strategy", strategy).Int("paths", len(paths)).Msg("conflicts resolved")
	return nil
}

// conflictingPaths lists paths in conflict marker state.
func (r *Resolver) conflictingPaths(ctx context.Context, workspace string) ([]string, error) {
	out, stderr, err := r.exec.Execute(ctx, workspace, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %s: %w", firstLine(stderr), err)
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if p := strings.TrimSpace(line); p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
