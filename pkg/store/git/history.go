package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

// identity returns the committer configured for the repository, looking
// at the repository config first, then at the user's global config, and
// finally asking git, which also knows the system config and environment.
func (r *Repository) identity(ctx context.Context) (name, email string, err error) {
	repo, err := r.open()
	if err != nil {
		return "", "", err
	}

	cfg, err := repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		// no readable global config: the local one may still be enough
		cfg, err = repo.Config()
		if err != nil {
			return "", "", errors.Wrapf(vcs.ErrIdentityMissing, "%s: %v", r.root, err)
		}
	}

	name, email = cfg.User.Name, cfg.User.Email
	if cfg.Committer.Name != "" && cfg.Committer.Email != "" {
		name, email = cfg.Committer.Name, cfg.Committer.Email
	}

	if name != "" && email != "" {
		return name, email, nil
	}

	// auto-detected identities (user@hostname) don't count
	out, err := r.Git(ctx, "-c", "user.useConfigOnly=true", "var", "GIT_COMMITTER_IDENT")
	if err != nil {
		return "", "", errors.Wrapf(vcs.ErrIdentityMissing, "%s: user.name and user.email must be set", r.root)
	}

	name, email, ok := parseIdent(out)
	if !ok {
		return "", "", errors.Wrapf(vcs.ErrIdentityMissing, "%s: unexpected identity %q", r.root, strings.TrimSpace(out))
	}

	return name, email, nil
}

// parseIdent splits a "Name <email> timestamp tz" git identity
func parseIdent(ident string) (name, email string, ok bool) {
	start := strings.LastIndexByte(ident, '<')
	end := strings.LastIndexByte(ident, '>')
	if start < 0 || end < start {
		return "", "", false
	}

	name = strings.TrimSpace(ident[:start])
	email = ident[start+1 : end]
	return name, email, name != "" && email != ""
}

// Head resolves HEAD to an existing commit
func (r *Repository) Head(ctx context.Context) (vcs.Hash, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}

	ref, err := repo.Head()
	if err != nil {
		return "", errors.Wrapf(vcs.ErrNoParent, "%s: %v", r.root, err)
	}

	if _, err = repo.CommitObject(ref.Hash()); err != nil {
		return "", errors.Wrapf(vcs.ErrNoParent, "%s: %v", r.root, err)
	}

	return vcs.Hash(ref.Hash().String()), nil
}

// Branch returns the branch HEAD symbolically points to, even unborn
func (r *Repository) Branch(ctx context.Context) (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}

	ref, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", errors.Wrapf(err, "reading HEAD of %s", r.root)
	}

	if ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return "", nil
	}

	return ref.Target().Short(), nil
}

// Commit writes the index as a tree, and a commit of that tree whose only
// parent is the current HEAD, then advances HEAD's branch to it.
func (r *Repository) Commit(ctx context.Context, message string) (vcs.Hash, error) {
	name, email, err := r.identity(ctx)
	if err != nil {
		return "", err
	}

	parent, err := r.Head(ctx)
	if err != nil {
		return "", err
	}

	tree, err := r.Git(ctx, "write-tree")
	if err != nil {
		return "", errors.Wrapf(vcs.ErrObjectWrite, "write-tree in %s: %v", r.root, err)
	}

	env := []string{
		"GIT_AUTHOR_NAME=" + name,
		"GIT_AUTHOR_EMAIL=" + email,
		"GIT_COMMITTER_NAME=" + name,
		"GIT_COMMITTER_EMAIL=" + email,
	}
	out, err := r.gitEnv(ctx, env, "commit-tree", strings.TrimSpace(tree), "-p", string(parent), "-m", message)
	if err != nil {
		return "", errors.Wrapf(vcs.ErrObjectWrite, "commit-tree in %s: %v", r.root, err)
	}
	commit := strings.TrimSpace(out)

	_, err = r.Git(ctx, "update-ref", "-m", "commit: "+firstLine(message), "HEAD", commit, string(parent))
	if err != nil {
		return "", errors.Wrapf(vcs.ErrObjectWrite, "update-ref in %s: %v", r.root, err)
	}

	return vcs.Hash(commit), nil
}

// MergeAnalysis compares two commits ancestry
func (r *Repository) MergeAnalysis(ctx context.Context, local, remote vcs.Hash) (vcs.MergeAnalysis, error) {
	if remote.IsZero() || local == remote {
		return vcs.UpToDate, nil
	}
	if local.IsZero() {
		return vcs.FastForward, nil
	}

	repo, err := r.open()
	if err != nil {
		return vcs.Unmergeable, err
	}

	lc, err := repo.CommitObject(plumbing.NewHash(string(local)))
	if err != nil {
		return vcs.Unmergeable, errors.Wrapf(err, "local commit %s", local.Short())
	}

	rc, err := repo.CommitObject(plumbing.NewHash(string(remote)))
	if err != nil {
		return vcs.Unmergeable, errors.Wrapf(err, "remote commit %s", remote.Short())
	}

	return analyze(lc, rc)
}

func analyze(local, remote *object.Commit) (vcs.MergeAnalysis, error) {
	contained, err := remote.IsAncestor(local)
	if err != nil {
		return vcs.Unmergeable, errors.Wrap(err, "ancestry walk")
	}
	if contained {
		return vcs.UpToDate, nil
	}

	behind, err := local.IsAncestor(remote)
	if err != nil {
		return vcs.Unmergeable, errors.Wrap(err, "ancestry walk")
	}
	if behind {
		return vcs.FastForward, nil
	}

	bases, err := local.MergeBase(remote)
	if err != nil {
		return vcs.Unmergeable, errors.Wrap(err, "merge base")
	}
	if len(bases) == 0 {
		return vcs.Unmergeable, nil
	}

	return vcs.Normal, nil
}

// FastForward advances the checked out branch to tip and updates the
// working tree. git refuses if local changes would be overwritten.
func (r *Repository) FastForward(ctx context.Context, tip vcs.Hash) error {
	if _, err := r.Git(ctx, "merge", "--ff-only", "--no-edit", string(tip)); err != nil {
		return errors.Wrapf(err, "fast-forward %s to %s", r.root, tip.Short())
	}
	return nil
}

// Merge runs a three-way merge of remote into the checked out local commit.
// On conflicts git leaves the conflict markers and MERGE_HEAD in place, and
// HEAD untouched.
func (r *Repository) Merge(ctx context.Context, local, remote vcs.Hash, message string) (vcs.MergeOutcome, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return vcs.MergeOutcome{}, err
	}
	if head != local {
		return vcs.MergeOutcome{}, fmt.Errorf("HEAD of %s moved to %s, expected %s", r.root, head.Short(), local.Short())
	}

	_, mergeErr := r.Git(ctx, "merge", "--no-ff", "--no-edit", "-m", message, string(remote))
	if mergeErr == nil {
		commit, err := r.Head(ctx)
		if err != nil {
			return vcs.MergeOutcome{}, err
		}
		return vcs.MergeOutcome{Commit: commit}, nil
	}

	pending, err := r.MergeInProgress(ctx)
	if err != nil {
		return vcs.MergeOutcome{}, err
	}
	if !pending {
		return vcs.MergeOutcome{}, errors.Wrapf(mergeErr, "merge %s into %s", remote.Short(), local.Short())
	}

	out, err := r.Git(ctx, "diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return vcs.MergeOutcome{}, errors.Wrapf(err, "listing conflicts in %s", r.root)
	}

	var conflicts []string
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			conflicts = append(conflicts, p)
		}
	}
	if len(conflicts) == 0 {
		// unmerged state without unmerged paths: report the merge itself
		conflicts = []string{"."}
	}

	return vcs.MergeOutcome{Conflicts: conflicts}, nil
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
