// Package config holds the runtime configuration shared by services.
package config

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/silvadanilo/keep-git-in-sync/pkg/store/git"
	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

// KgsConfig is the configuration struct, passed to services constructors
type KgsConfig struct {
	// When DryRun is true, we detect and log changes but never commit nor push
	DryRun bool

	// Logger should be used to send all logs
	Logger *logrus.Logger

	// Watch lists the repositories working trees to keep in sync
	Watch []string

	// Remote is the name of the remote we sync with
	Remote string

	// RemoteURL is used to create the remote in repositories lacking it
	RemoteURL string

	// RemoteURLs overrides RemoteURL per repository root
	RemoteURLs map[string]string

	// Branch is the local and remote branch we sync
	Branch string

	// Debounce is the quiet period awaited after a path change
	Debounce time.Duration

	// ResyncIntv define the duration between full resync. Set to 0 to disable resyncs.
	ResyncIntv time.Duration

	// GitTimeout bounds every git command
	GitTimeout time.Duration

	// HealthPort is the facultative healthcheck port
	HealthPort int

	// Opener opens the watched repositories
	Opener vcs.Opener
}

// Init validates the configuration and initialize the repositories Opener
func (c *KgsConfig) Init() error {
	if c.Logger == nil {
		return fmt.Errorf("a logger is required")
	}

	if len(c.Watch) == 0 {
		return fmt.Errorf("no directory to watch")
	}

	if c.Debounce < 0 || c.ResyncIntv < 0 || c.GitTimeout < 0 {
		return fmt.Errorf("durations can't be negative")
	}

	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("invalid healthcheck port %d", c.HealthPort)
	}

	// keys must match the registry's roots
	urls := make(map[string]string, len(c.RemoteURLs))
	for path, url := range c.RemoteURLs {
		root, err := filepath.Abs(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("invalid remote url path %s: %v", path, err)
		}
		urls[root] = url
	}
	c.RemoteURLs = urls

	if c.Opener == nil {
		// better fail early, if we can't run git
		if _, err := exec.LookPath("git"); err != nil {
			return fmt.Errorf("git command not found: %v", err)
		}
		c.Opener = git.NewOpener(c.Logger, c.GitTimeout)
	}

	c.Logger.Infof("Syncing %d path(s) with %s/%s", len(c.Watch), c.Remote, c.Branch)
	return nil
}
