// Package detector tells whether a working tree holds uncommitted changes
package detector

import (
	"context"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

// Options are the status options a pending change is looked for with:
// untracked files count (recursing into new directories), submodules don't.
var Options = vcs.StatusOptions{
	IncludeUntracked:     true,
	RecurseUntrackedDirs: true,
	ExcludeSubmodules:    true,
}

// IsModified reports whether repo has any staged, unstaged or untracked change
func IsModified(ctx context.Context, repo vcs.Repository) (bool, error) {
	changed, err := repo.Status(ctx, Options)
	if err != nil {
		return false, err
	}
	return len(changed) > 0, nil
}
