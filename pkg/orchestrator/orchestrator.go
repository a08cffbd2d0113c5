// Package orchestrator consumes filesystem change notifications and drives
// the owning repository through change detection, commit and sync. Events
// are processed one at a time, so git operations never overlap.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/silvadanilo/keep-git-in-sync/config"
	"github.com/silvadanilo/keep-git-in-sync/pkg/committer"
	"github.com/silvadanilo/keep-git-in-sync/pkg/detector"
	"github.com/silvadanilo/keep-git-in-sync/pkg/event"
	"github.com/silvadanilo/keep-git-in-sync/pkg/registry"
	"github.com/silvadanilo/keep-git-in-sync/pkg/router"
	"github.com/silvadanilo/keep-git-in-sync/pkg/syncer"
	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

type logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Status is a repository's last processing outcome
type Status struct {
	Root   string    `json:"root"`
	State  string    `json:"state"`
	Commit string    `json:"commit,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

const (
	// StateClean means the working tree had nothing to commit
	StateClean = "clean"

	// StateDetected means changes were found but left alone (dry-run)
	StateDetected = "detected"

	// StateCommitFailed means the changes couldn't be committed
	StateCommitFailed = "commit-failed"

	// StateMergePending means a conflicted merge awaits manual resolution
	StateMergePending = "merge-pending"
)

// Orchestrator is the single consumer of change notifications
type Orchestrator struct {
	logger    logger
	events    *event.Notifier
	registry  *registry.Registry
	router    *router.Router
	committer *committer.Committer
	syncer    *syncer.Syncer
	dryRun    bool
	resync    time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu       sync.RWMutex // protect statuses
	statuses map[string]Status
}

// New returns an Orchestrator for the registry's repositories
func New(conf *config.KgsConfig, reg *registry.Registry, events *event.Notifier) *Orchestrator {
	return &Orchestrator{
		logger:    conf.Logger,
		events:    events,
		registry:  reg,
		router:    router.New(reg),
		committer: committer.New(conf.Logger, nil),
		syncer: syncer.New(conf.Logger, syncer.Options{
			Remote: conf.Remote,
			Branch: conf.Branch,
			URL:    conf.RemoteURL,
			URLs:   conf.RemoteURLs,
		}),
		dryRun:   conf.DryRun,
		resync:   conf.ResyncIntv,
		statuses: make(map[string]Status),
	}
}

// Start processes notifications in the background
func (o *Orchestrator) Start() *Orchestrator {
	o.logger.Infof("Starting orchestrator for %d repositories", o.registry.Len())

	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})

	go wait.Until(o.runWorker, time.Second, o.stopCh)

	if o.resync > 0 {
		go wait.Until(o.Resync, o.resync, o.stopCh)
	}

	return o
}

// Stop halts the orchestrator once the in-flight notification is processed
func (o *Orchestrator) Stop() {
	o.logger.Infof("Stopping orchestrator")
	close(o.stopCh)
	o.events.ShutDown()
	<-o.doneCh
}

// Resync enqueues a synthetic change per repository, so failed pushes and
// missed notifications are eventually handled
func (o *Orchestrator) Resync() {
	for _, root := range o.registry.Roots() {
		o.events.Send(event.Change{Path: root, Kind: event.Modified})
	}
}

func (o *Orchestrator) runWorker() {
	defer utilruntime.HandleCrash()
	for o.processNextItem() {
		// continue looping
	}
	select {
	case <-o.doneCh:
	default:
		close(o.doneCh)
	}
}

func (o *Orchestrator) processNextItem() bool {
	change, quit := o.events.Get()
	if quit {
		return false
	}
	defer o.events.Done(change)

	repo, ok := o.router.Route(change)
	if !ok {
		o.logger.Debugf("Ignoring %s change on %s", change.Kind, change.Path)
		return true
	}

	o.Process(context.Background(), repo)
	return true
}

// Process detects, commits and syncs a repository's pending changes
func (o *Orchestrator) Process(ctx context.Context, repo vcs.Repository) {
	root := repo.Root()

	pending, err := repo.MergeInProgress(ctx)
	if err != nil {
		o.record(root, syncer.Failed.String(), "", err)
		return
	}
	if pending {
		o.logger.Warnf("A merge is pending in %s, waiting for manual resolution", root)
		o.record(root, StateMergePending, "", vcs.ErrMergeInProgress)
		return
	}

	modified, err := detector.IsModified(ctx, repo)
	if err != nil {
		o.logger.Errorf("Failed to get %s status: %v", root, err)
		o.record(root, syncer.Failed.String(), "", err)
		return
	}
	if !modified {
		o.logger.Debugf("Nothing to commit in %s", root)
		if o.lastFailedSync(root) && !o.dryRun {
			// retry the sync a failed push or a conflict left behind
			o.sync(ctx, repo)
			return
		}
		o.record(root, StateClean, "", nil)
		return
	}

	if o.dryRun {
		o.logger.Infof("Dry-run: changes detected in %s, not committing", root)
		o.record(root, StateDetected, "", nil)
		return
	}

	if _, err = o.committer.CommitAll(ctx, repo, ""); err != nil {
		o.record(root, StateCommitFailed, "", err)
		return
	}

	o.sync(ctx, repo)
}

func (o *Orchestrator) sync(ctx context.Context, repo vcs.Repository) {
	res, err := o.syncer.Sync(ctx, repo)
	o.record(repo.Root(), res.State.String(), string(res.Head), err)
}

func (o *Orchestrator) lastFailedSync(root string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.statuses[root]
	if !ok {
		return false
	}

	switch st.State {
	case syncer.PushFailed.String(), syncer.Failed.String():
		return true
	case syncer.Conflicted.String(), StateMergePending:
		// the merge may have been concluded by hand since
		return true
	}
	return false
}

func (o *Orchestrator) record(root, state, commit string, err error) {
	st := Status{
		Root:   root,
		State:  state,
		Commit: commit,
		Time:   time.Now(),
	}
	if err != nil {
		st.Error = err.Error()
	}

	o.mu.Lock()
	o.statuses[root] = st
	o.mu.Unlock()
}

// Statuses returns each processed repository's last outcome, sorted by root
func (o *Orchestrator) Statuses() []Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	statuses := make([]Status, 0, len(o.statuses))
	for _, st := range o.statuses {
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Root < statuses[j].Root })

	return statuses
}
