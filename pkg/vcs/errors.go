package vcs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotRepository is returned when a path isn't a repository root
	ErrNotRepository = errors.New("not a repository")

	// ErrIdentityMissing is returned when no commit identity is configured
	ErrIdentityMissing = errors.New("no commit identity configured")

	// ErrNoParent is returned when HEAD doesn't resolve to a commit
	ErrNoParent = errors.New("HEAD does not resolve to a commit")

	// ErrObjectWrite wraps storage failures while writing objects or refs
	ErrObjectWrite = errors.New("failed to write repository objects")

	// ErrNetwork wraps fetch and push transport failures
	ErrNetwork = errors.New("network error")

	// ErrNonFastForwardRejected is returned when the remote refuses a push
	ErrNonFastForwardRejected = errors.New("push rejected: non fast-forward")

	// ErrRemoteMisconfigured is returned when the remote is missing or has no url
	ErrRemoteMisconfigured = errors.New("remote misconfigured")

	// ErrMergeConflict is matched by *ConflictError
	ErrMergeConflict = errors.New("merge conflict")

	// ErrMergeInProgress is returned while a conflicted merge isn't resolved
	ErrMergeInProgress = errors.New("merge in progress")

	// ErrWrongBranch is returned when the checkout isn't on the synchronized branch
	ErrWrongBranch = errors.New("checked out branch isn't the synchronized one")

	// ErrUnmergeable is returned when local and remote share no history
	ErrUnmergeable = errors.New("unrelated histories")
)

// ConflictError reports the paths a three-way merge couldn't reconcile.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %d path(s): %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// Is lets errors.Is(err, ErrMergeConflict) match
func (e *ConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}
