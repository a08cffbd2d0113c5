// Package event mediates change notifications between the filesystem
// notifier and the orchestrator
package event

import (
	"k8s.io/client-go/util/workqueue"
)

// Kind represents the kind of filesystem change we're notifying
type Kind int

const (
	// Created is a file or directory creation
	Created Kind = iota

	// Modified is a content or metadata change
	Modified

	// Removed is a file or directory deletion
	Removed

	// Renamed is a file or directory move
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	}
	return "unknown"
}

// Change conveys a filesystem change under a watched directory. Changes
// are comparable, identical pending changes are delivered once.
type Change struct {
	Path string
	Kind Kind
}

// Notifier is a blocking, coalescing queue of changes
type Notifier struct {
	queue workqueue.Interface
}

// New creates a new event.Notifier
func New() *Notifier {
	return &Notifier{
		queue: workqueue.New(),
	}
}

// Send queues a change notification. Sending after ShutDown is a no-op.
func (n *Notifier) Send(change Change) {
	n.queue.Add(change)
}

// Get blocks until a change is available. It returns false once the
// notifier is shut down and drained. Every Change obtained from Get
// must be released with Done.
func (n *Notifier) Get() (Change, bool) {
	item, quit := n.queue.Get()
	if quit {
		return Change{}, false
	}
	return item.(Change), true
}

// Done marks a change as processed
func (n *Notifier) Done(change Change) {
	n.queue.Done(change)
}

// Len returns the number of pending changes
func (n *Notifier) Len() int {
	return n.queue.Len()
}

// ShutDown makes Get return false once pending changes are drained
func (n *Notifier) ShutDown() {
	n.queue.ShutDown()
}
