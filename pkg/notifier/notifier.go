// Package notifier watches directory trees for filesystem changes and
// sends debounced change notifications.
package notifier

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/silvadanilo/keep-git-in-sync/pkg/event"
	"github.com/silvadanilo/keep-git-in-sync/pkg/vcs"
)

var appFs = afero.NewOsFs()

type logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Sender receives change notifications
type Sender interface {
	Send(change event.Change)
}

// Notifier watches roots recursively. Repositories metadata directories
// aren't watched, though changes to their entry in a watched directory are
// still reported.
type Notifier struct {
	logger   logger
	sender   Sender
	roots    []string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu      sync.Mutex // protect pending and stopped
	pending map[string]*pendingChange
	stopped bool
}

type pendingChange struct {
	kind  event.Kind
	timer *time.Timer
}

// New creates a Notifier. A path is notified once it stayed quiet for the
// debounce duration.
func New(log logger, sender Sender, roots []string, debounce time.Duration) *Notifier {
	return &Notifier{
		logger:   log,
		sender:   sender,
		roots:    roots,
		debounce: debounce,
		pending:  make(map[string]*pendingChange),
	}
}

// Start watches the roots and notifies changes in a detached goroutine
func (n *Notifier) Start() (*Notifier, error) {
	n.logger.Infof("Starting filesystem notifier on %d root(s)", len(n.roots))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n.watcher = watcher

	for _, root := range n.roots {
		if err = n.watchTree(root); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	}

	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})

	go n.run()

	return n, nil
}

// Stop halts the notifier. Pending changes are dropped.
func (n *Notifier) Stop() {
	n.logger.Infof("Stopping filesystem notifier")

	close(n.stopCh)
	<-n.doneCh

	n.mu.Lock()
	n.stopped = true
	for path, p := range n.pending {
		p.timer.Stop()
		delete(n.pending, path)
	}
	n.mu.Unlock()

	if err := n.watcher.Close(); err != nil {
		n.logger.Errorf("Failed to close the filesystem watcher: %v", err)
	}
}

func (n *Notifier) run() {
	defer close(n.doneCh)

	for {
		select {
		case <-n.stopCh:
			return
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			n.handle(ev)
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Errorf("Filesystem watcher error: %v", err)
		}
	}
}

func (n *Notifier) handle(ev fsnotify.Event) {
	var kind event.Kind
	switch {
	case ev.Has(fsnotify.Create):
		kind = event.Created
		n.watchIfDir(ev.Name)
	case ev.Has(fsnotify.Remove):
		kind = event.Removed
	case ev.Has(fsnotify.Rename):
		kind = event.Renamed
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		kind = event.Modified
	default:
		return
	}

	n.schedule(filepath.Clean(ev.Name), kind)
}

// schedule (re)arms the path's debounce timer. The last seen kind wins.
func (n *Notifier) schedule(path string, kind event.Kind) {
	if n.debounce <= 0 {
		n.sender.Send(event.Change{Path: path, Kind: kind})
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}

	if p, ok := n.pending[path]; ok {
		p.kind = kind
		p.timer.Reset(n.debounce)
		return
	}

	n.pending[path] = &pendingChange{
		kind:  kind,
		timer: time.AfterFunc(n.debounce, func() { n.flush(path) }),
	}
}

func (n *Notifier) flush(path string) {
	n.mu.Lock()
	p, ok := n.pending[path]
	if ok {
		delete(n.pending, path)
	}
	stopped := n.stopped
	n.mu.Unlock()

	if !ok || stopped {
		return
	}

	n.logger.Debugf("%s %s", p.kind, path)
	n.sender.Send(event.Change{Path: path, Kind: p.kind})
}

func (n *Notifier) watchIfDir(path string) {
	if filepath.Base(path) == vcs.MetadataDir {
		return
	}

	isDir, err := afero.IsDir(appFs, path)
	if err != nil || !isDir {
		return
	}

	if err = n.watchTree(path); err != nil {
		n.logger.Errorf("Failed to watch new directory %s: %v", path, err)
	}
}

// watchTree adds a watch on dir and all its sub-directories, except
// metadata directories
func (n *Notifier) watchTree(dir string) error {
	return afero.Walk(appFs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path != dir && os.IsNotExist(err) {
				// removed while walking
				return nil
			}
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if info.Name() == vcs.MetadataDir {
			return filepath.SkipDir
		}

		if err := n.watcher.Add(path); err != nil {
			return err
		}

		n.logger.Debugf("Watching %s", path)
		return nil
	})
}
