package gitexec

import (
	"strings"

	"reposense/internal/models"
)

// classRule maps a stderr substring to an error kind. Checked in order;
// the more specific patterns come first.
type classRule struct {
	needle string
	kind   string
}

var classRules = []classRule{
	{"not a git repository", models.ErrKindNotARepository},
	{"nothing to commit", models.ErrKindNothingToCommit},
	{"working tree clean", models.ErrKindNothingToCommit},
	{"no changes added to commit", models.ErrKindNothingToCommit},
	{"non-fast-forward", models.ErrKindNonFastForward},
	{"fetch first", models.ErrKindNonFastForward},
	{"[rejected]", models.ErrKindNonFastForward},
	{"merge conflict", models.ErrKindMergeConflict},
	{"fix conflicts", models.ErrKindMergeConflict},
	{"needs merge", models.ErrKindMergeConflict},
	{"unmerged files", models.ErrKindMergeConflict},
	{"authentication failed", models.ErrKindAuth},
	{"permission denied", models.ErrKindAuth},
	{"access denied", models.ErrKindAuth},
	{"could not read username", models.ErrKindAuth},
	{"invalid credentials", models.ErrKindAuth},
	{"could not resolve host", models.ErrKindNetwork},
	{"connection refused", models.ErrKindNetwork},
	{"connection timed out", models.ErrKindNetwork},
	{"network is unreachable", models.ErrKindNetwork},
	{"could not connect", models.ErrKindNetwork},
	{"unable to access", models.ErrKindNetwork},
}

// Classify assigns one of the closed error kinds from git's raw output.
// Both stdout and stderr matter: git writes "nothing to commit" to stdout.
func Classify(output string) string {
	text := strings.ToLower(output)
	for _, r := range classRules {
		if strings.Contains(text, r.needle) {
			return r.kind
		}
	}
	return models.ErrKindUnknown
}
