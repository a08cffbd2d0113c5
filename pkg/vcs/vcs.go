// Package vcs defines the narrow version-control capability the sync
// pipeline is written against. The git store implements it on top of go-git
// and the git command, and the fake subpackage implements it in memory.
package vcs

import (
	"context"
	"fmt"
)

// MetadataDir is the name of the version-control metadata directory.
const MetadataDir = ".git"

// Hash identifies a commit. The zero value means "no commit".
type Hash string

// IsZero tells whether the hash points to nothing
func (h Hash) IsZero() bool {
	return h == ""
}

// Short returns an abbreviated hash, for logs
func (h Hash) Short() string {
	if len(h) > 7 {
		return string(h[:7])
	}
	return string(h)
}

// MergeAnalysis is the relation between the local HEAD and a remote tip.
type MergeAnalysis int

const (
	// UpToDate means the remote tip is already contained in local history
	UpToDate MergeAnalysis = iota

	// FastForward means local HEAD is an ancestor of the remote tip
	FastForward

	// Normal means both sides have commits the other lacks
	Normal

	// Unmergeable means the histories share no common ancestor
	Unmergeable
)

func (m MergeAnalysis) String() string {
	switch m {
	case UpToDate:
		return "up-to-date"
	case FastForward:
		return "fast-forward"
	case Normal:
		return "normal"
	case Unmergeable:
		return "unmergeable"
	}
	return fmt.Sprintf("MergeAnalysis(%d)", int(m))
}

// MergeOutcome is the result of a three-way merge. Exactly one of Commit
// and Conflicts is set.
type MergeOutcome struct {
	Commit    Hash
	Conflicts []string
}

// Conflicted tells whether the merge stopped on conflicting paths
func (o MergeOutcome) Conflicted() bool {
	return len(o.Conflicts) > 0
}

// StatusOptions tunes the working tree status computation.
type StatusOptions struct {
	IncludeUntracked     bool
	RecurseUntrackedDirs bool
	ExcludeSubmodules    bool
}

// Repository is the set of operations the pipeline needs from a checkout.
// A Repository is used by a single goroutine at a time.
type Repository interface {
	// Root is the absolute path of the working tree
	Root() string

	// Status lists the paths differing between working tree, index and HEAD
	Status(ctx context.Context, opts StatusOptions) ([]string, error)

	// StageAll stages every change of the working tree and persists the index
	StageAll(ctx context.Context) error

	// Commit records the index as a new commit whose sole parent is HEAD
	Commit(ctx context.Context, message string) (Hash, error)

	// Head resolves the commit HEAD points to
	Head(ctx context.Context) (Hash, error)

	// Branch returns the short name of the checked out branch, or an
	// empty string when HEAD is detached
	Branch(ctx context.Context) (string, error)

	// EnsureRemote creates the named remote with url when it's missing
	EnsureRemote(ctx context.Context, name, url string) error

	// Fetch updates the remote-tracking ref of branch and returns its tip.
	// The zero hash is returned when the remote doesn't have the branch.
	Fetch(ctx context.Context, remote, branch string) (Hash, error)

	// MergeAnalysis compares local and remote commits
	MergeAnalysis(ctx context.Context, local, remote Hash) (MergeAnalysis, error)

	// FastForward moves the current branch to tip and updates the working tree
	FastForward(ctx context.Context, tip Hash) error

	// Merge performs a three-way merge of remote into local. Without
	// conflicts it creates a two-parent commit with message and checks it
	// out; with conflicts it leaves the conflicted state in the working tree.
	Merge(ctx context.Context, local, remote Hash, message string) (MergeOutcome, error)

	// MergeInProgress tells whether a previous merge awaits resolution
	MergeInProgress(ctx context.Context) (bool, error)

	// Push sends refspec to the named remote
	Push(ctx context.Context, remote, refspec string) error
}

// Opener opens repositories rooted at a directory.
type Opener interface {
	Open(path string) (Repository, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Repository, error)

// Open calls f(path)
func (f OpenerFunc) Open(path string) (Repository, error) {
	return f(path)
}

// RefSpec builds the explicit push refspec for branch.
func RefSpec(branch string) string {
	return fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
}
