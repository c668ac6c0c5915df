package gitexec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"reposense/internal/models"
)

func wrapGitError(stderr string, err error) error {
	if msg := firstLine(stderr); msg != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return err
}

// RepoInfo describes a detected repository.
type RepoInfo struct {
	IsRepo        bool     `json:"is_repo"`
	RepoName      string   `json:"repo_name,omitempty"`
	CurrentBranch string   `json:"current_branch,omitempty"`
	RemoteURL     string   `json:"remote_url,omitempty"`
	Branches      []string `json:"branches,omitempty"`
}

// WorkspaceStatus summarizes the working tree.
type WorkspaceStatus struct {
	Clean bool     `json:"clean"`
	Files []string `json:"files"`
}

// Detect inspects a workspace and reports repository metadata. A missing
// repository is not an error, just IsRepo=false.
func (r *Runner) Detect(ctx context.Context, workspace string) (RepoInfo, error) {
	_, stderr, err := r.exec.Execute(ctx, workspace, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		if Classify(stderr) == models.ErrKindNotARepository {
			return RepoInfo{IsRepo: false}, nil
		}
		return RepoInfo{}, err
	}

	info := RepoInfo{IsRepo: true, RepoName: filepath.Base(workspace)}

	if branch, _, err := r.exec.Execute(ctx, workspace, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		info.CurrentBranch = branch
	}
	// A repo without a remote is still a repo.
	if remote, _, err := r.exec.Execute(ctx, workspace, "remote", "get-url", "origin"); err == nil {
		info.RemoteURL = remote
	}
	if out, _, err := r.exec.Execute(ctx, workspace, "branch", "--format=%(refname:short)"); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if b := strings.TrimSpace(line); b != "" {
				info.Branches = append(info.Branches, b)
			}
		}
	}
	return info, nil
}

// Status returns the porcelain status of a workspace.
func (r *Runner) Status(ctx context.Context, workspace string) (WorkspaceStatus, error) {
	out, stderr, err := r.exec.Execute(ctx, workspace, "status", "--porcelain")
	if err != nil {
		return WorkspaceStatus{}, wrapGitError(stderr, err)
	}
	st := WorkspaceStatus{Clean: true}
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 3 {
			st.Files = append(st.Files, strings.TrimSpace(line[3:]))
		}
	}
	st.Clean = len(st.Files) == 0
	return st, nil
}
