package git

import (
	"context"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/pkg/errors"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

// EnsureRemote creates the remote when it doesn't exist yet
func (r *Repository) EnsureRemote(ctx context.Context, name, url string) error {
	repo, err := r.open()
	if err != nil {
		return err
	}

	_, err = repo.Remote(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gogit.ErrRemoteNotFound) {
		return errors.Wrapf(vcs.ErrRemoteMisconfigured, "%s remote %q: %v", r.root, name, err)
	}

	if url == "" {
		return errors.Wrapf(vcs.ErrRemoteMisconfigured, "%s has no %q remote and no url to create it", r.root, name)
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	if err != nil {
		return errors.Wrapf(vcs.ErrRemoteMisconfigured, "creating %s remote %q: %v", r.root, name, err)
	}

	r.logger.Infof("Created remote %s (%s) in %s", name, url, r.root)
	return nil
}

// Fetch updates refs/remotes/<remote>/<branch> and returns its tip
func (r *Repository) Fetch(ctx context.Context, remote, branch string) (vcs.Hash, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tracking := plumbing.NewRemoteReferenceName(remote, branch)
	refspec := config.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), tracking))

	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{refspec},
		Tags:       gogit.NoTags,
	})

	var nomatch gogit.NoMatchingRefSpecError
	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
	case errors.As(err, &nomatch), errors.Is(err, transport.ErrEmptyRemoteRepository):
		r.logger.Debugf("%s: remote %s has no %s branch yet", r.root, remote, branch)
		return "", nil
	case errors.Is(err, gogit.ErrRemoteNotFound):
		return "", errors.Wrapf(vcs.ErrRemoteMisconfigured, "%s: %v", r.root, err)
	default:
		return "", errors.Wrapf(vcs.ErrNetwork, "fetching %s %s into %s: %v", remote, branch, r.root, err)
	}

	ref, err := repo.Reference(tracking, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s in %s", tracking, r.root)
	}

	return vcs.Hash(ref.Hash().String()), nil
}

// Push pushes refspec to remote
func (r *Repository) Push(ctx context.Context, remote, refspec string) error {
	repo, err := r.open()
	if err != nil {
		return err
	}

	rem, err := repo.Remote(remote)
	if err != nil {
		return errors.Wrapf(vcs.ErrRemoteMisconfigured, "%s remote %q: %v", r.root, remote, err)
	}
	if urls := rem.Config().URLs; len(urls) == 0 || urls[0] == "" {
		return errors.Wrapf(vcs.ErrRemoteMisconfigured, "%s remote %q has no url", r.root, remote)
	}

	rs := config.RefSpec(refspec)
	if err = rs.Validate(); err != nil {
		return errors.Wrapf(err, "invalid refspec %q", refspec)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{rs},
	})

	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
		return nil
	case isRejection(err):
		return errors.Wrapf(vcs.ErrNonFastForwardRejected, "pushing %s to %s: %v", refspec, remote, err)
	default:
		return errors.Wrapf(vcs.ErrNetwork, "pushing %s to %s: %v", refspec, remote, err)
	}
}

func isRejection(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "fetch first") ||
		strings.Contains(msg, "rejected")
}
