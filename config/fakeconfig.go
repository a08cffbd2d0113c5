package config

import (
	"context"
	"os"
	"time"

	"github.com/silvadanilo/keep-git-in-sync/pkg/log"
	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs/fake"
)

var (
	// FakeResyncInterval is the interval between resyncs during unit tests
	FakeResyncInterval = time.Duration(time.Second)

	// FakeRemoteURL is the in-memory remote fake repositories are cloned from
	FakeRemoteURL = "mem://upstream"
)

// FakeConfig returns a configuration struct using in-memory repositories, for unit tests
func FakeConfig(watch ...string) *KgsConfig {
	if len(watch) == 0 {
		watch = []string{os.TempDir()}
	}

	logger, _ := log.New("", "", "test")

	return &KgsConfig{
		DryRun:     true,
		Logger:     logger,
		Watch:      watch,
		Remote:     "upstream",
		Branch:     fake.DefaultBranch,
		RemoteURL:  FakeRemoteURL,
		Debounce:   10 * time.Millisecond,
		ResyncIntv: FakeResyncInterval,
		Opener:     FakeOpener(),
	}
}

// FakeOpener opens in-memory clones of a shared in-memory remote, which
// holds a single README commit. Useful for testing without git.
func FakeOpener() vcs.Opener {
	net := fake.NewNetwork()
	net.Remote(FakeRemoteURL)

	seed := fake.New("/seed", net)
	seed.Seed(map[string]string{"README": "fake\n"})
	ctx := context.Background()
	if err := seed.EnsureRemote(ctx, "upstream", FakeRemoteURL); err != nil {
		panic(err)
	}
	if err := seed.Push(ctx, "upstream", vcs.RefSpec(fake.DefaultBranch)); err != nil {
		panic(err)
	}

	return vcs.OpenerFunc(func(path string) (vcs.Repository, error) {
		repo, err := fake.Clone(path, net, "upstream", FakeRemoteURL, fake.DefaultBranch)
		if err != nil {
			return nil, err
		}
		return repo, nil
	})
}
