// Package committer records every pending working tree change as a new
// commit on top of HEAD.
package committer

import (
	"context"
	"time"

	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

// MessageLayout is the auto-commit timestamp layout (local time)
const MessageLayout = "2006-01-02 15:04:05"

type logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Clock returns the current time
type Clock func() time.Time

// Committer stages and commits all changes
type Committer struct {
	logger logger
	clock  Clock
}

// New returns a Committer. A nil clock means time.Now.
func New(log logger, clock Clock) *Committer {
	if clock == nil {
		clock = time.Now
	}
	return &Committer{logger: log, clock: clock}
}

// Message builds the auto-commit message for t, in local time
func Message(t time.Time) string {
	return "Auto-Commit at: " + t.Local().Format(MessageLayout)
}

// Message builds the auto-commit message for now
func (c *Committer) Message() string {
	return Message(c.clock())
}

// CommitAll stages all changes (additions, modifications and deletions)
// then commits the index with HEAD as sole parent. An empty message means
// an auto-commit message.
func (c *Committer) CommitAll(ctx context.Context, repo vcs.Repository, message string) (vcs.Hash, error) {
	if message == "" {
		message = c.Message()
	}

	if err := repo.StageAll(ctx); err != nil {
		c.logger.Errorf("Failed to stage changes in %s: %v", repo.Root(), err)
		return "", err
	}

	hash, err := repo.Commit(ctx, message)
	if err != nil {
		c.logger.Errorf("Failed to commit in %s: %v", repo.Root(), err)
		return "", err
	}

	c.logger.Infof("Committed %s in %s: %s", hash.Short(), repo.Root(), message)
	return hash, nil
}
