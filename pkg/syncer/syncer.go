// Package syncer reconciles a repository's checked out branch with its
// remote counterpart: fetch, fast-forward or merge, then push.
package syncer

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

const (
	// DefaultRemote is the remote repositories sync with
	DefaultRemote = "upstream"

	// DefaultBranch is the branch repositories sync
	DefaultBranch = "master"
)

// State is a step of the synchronization
type State int

const (
	// Idle means no synchronization happened yet
	Idle State = iota
	Fetching
	Analyzing
	FastForwarding
	Merging
	// Merged is a successful merge commit, before pushing
	Merged
	// Conflicted means a merge left conflicts in the working tree
	Conflicted
	Pushing
	// Pushed is the successful end of a synchronization
	Pushed
	// PushFailed means local history is fine, but the remote wasn't updated
	PushFailed
	// Failed means the synchronization stopped before any push
	Failed
)

var stateNames = map[State]string{
	Idle:           "idle",
	Fetching:       "fetching",
	Analyzing:      "analyzing",
	FastForwarding: "fast-forwarding",
	Merging:        "merging",
	Merged:         "merged",
	Conflicted:     "conflicted",
	Pushing:        "pushing",
	Pushed:         "pushed",
	PushFailed:     "push-failed",
	Failed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

type logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Options selects the remote and branch to sync with
type Options struct {
	// Remote is the remote name, DefaultRemote when empty
	Remote string

	// Branch is both the local and the remote branch, DefaultBranch when empty
	Branch string

	// URL is used to create the remote where it's missing
	URL string

	// URLs overrides URL per repository root
	URLs map[string]string
}

// Result is the outcome of a synchronization
type Result struct {
	State     State
	Analysis  vcs.MergeAnalysis
	Head      vcs.Hash
	Remote    vcs.Hash
	Conflicts []string
}

// Syncer synchronizes repositories with a fixed remote and branch
type Syncer struct {
	logger logger
	remote string
	branch string
	url    string
	urls   map[string]string
}

// New returns a Syncer
func New(log logger, opts Options) *Syncer {
	if opts.Remote == "" {
		opts.Remote = DefaultRemote
	}
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}
	return &Syncer{
		logger: log,
		remote: opts.Remote,
		branch: opts.Branch,
		url:    opts.URL,
		urls:   opts.URLs,
	}
}

// Remote returns the remote name repositories sync with
func (s *Syncer) Remote() string {
	return s.remote
}

// Branch returns the synchronized branch
func (s *Syncer) Branch() string {
	return s.branch
}

func (s *Syncer) urlFor(root string) string {
	if url, ok := s.urls[root]; ok && url != "" {
		return url
	}
	return s.url
}

// Sync integrates the remote branch into the local one and pushes the
// result. The checkout must be on the synchronized branch, otherwise
// nothing is done. Conflicts are never resolved: the conflicted merge is left in the
// working tree, and later syncs refuse to run until it's cleared.
func (s *Syncer) Sync(ctx context.Context, repo vcs.Repository) (Result, error) {
	root := repo.Root()
	res := Result{State: Idle}

	pending, err := repo.MergeInProgress(ctx)
	if err != nil {
		return s.fail(res, err)
	}
	if pending {
		res.State = Conflicted
		return res, errors.Wrapf(vcs.ErrMergeInProgress, "%s", root)
	}

	current, err := repo.Branch(ctx)
	if err != nil {
		return s.fail(res, err)
	}
	if current != s.branch {
		if current == "" {
			current = "a detached HEAD"
		}
		return s.fail(res, errors.Wrapf(vcs.ErrWrongBranch, "%s is on %s, not %s", root, current, s.branch))
	}

	local, err := repo.Head(ctx)
	if err != nil {
		return s.fail(res, err)
	}
	res.Head = local

	res.State = Fetching
	if err = repo.EnsureRemote(ctx, s.remote, s.urlFor(root)); err != nil {
		if errors.Is(err, vcs.ErrRemoteMisconfigured) {
			// a remote without url can never be pushed to
			res.State = PushFailed
			s.logger.Errorf("Can't push %s to %s: %v", root, s.remote, err)
			return res, err
		}
		return s.fail(res, err)
	}

	tip, err := repo.Fetch(ctx, s.remote, s.branch)
	if err != nil {
		return s.fail(res, err)
	}
	res.Remote = tip

	res.State = Analyzing
	analysis, err := repo.MergeAnalysis(ctx, local, tip)
	if err != nil {
		return s.fail(res, err)
	}
	res.Analysis = analysis
	s.logger.Debugf("%s: local %s, %s/%s %s: %s", root, local.Short(), s.remote, s.branch, tip.Short(), analysis)

	switch analysis {
	case vcs.UpToDate:

	case vcs.FastForward:
		res.State = FastForwarding
		if err = repo.FastForward(ctx, tip); err != nil {
			return s.fail(res, err)
		}
		res.Head = tip
		s.logger.Infof("Fast-forwarded %s to %s", root, tip.Short())

	case vcs.Normal:
		res.State = Merging
		var outcome vcs.MergeOutcome
		outcome, err = repo.Merge(ctx, local, tip, MergeMessage(local, tip))
		if err != nil {
			return s.fail(res, err)
		}
		if outcome.Conflicted() {
			res.State = Conflicted
			res.Conflicts = outcome.Conflicts
			s.logger.Warnf("Merge of %s into %s conflicts on %v, manual resolution needed", tip.Short(), root, outcome.Conflicts)
			return res, &vcs.ConflictError{Paths: outcome.Conflicts}
		}
		res.State = Merged
		res.Head = outcome.Commit
		s.logger.Infof("Merged %s into %s as %s", tip.Short(), root, outcome.Commit.Short())

	default:
		return s.fail(res, errors.Wrapf(vcs.ErrUnmergeable, "%s and %s/%s have no common history", root, s.remote, s.branch))
	}

	res.State = Pushing
	if err = repo.Push(ctx, s.remote, vcs.RefSpec(s.branch)); err != nil {
		res.State = PushFailed
		s.logger.Errorf("Failed to push %s to %s: %v", root, s.remote, err)
		return res, err
	}

	res.State = Pushed
	s.logger.Infof("Pushed %s %s to %s", root, res.Head.Short(), s.remote)
	return res, nil
}

func (s *Syncer) fail(res Result, err error) (Result, error) {
	s.logger.Errorf("Sync failed while %s: %v", res.State, err)
	res.State = Failed
	return res, err
}

// MergeMessage is the merge commit message
func MergeMessage(local, remote vcs.Hash) string {
	return fmt.Sprintf("Merge: %s into %s", remote, local)
}
