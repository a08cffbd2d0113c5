package notifier

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvadanilo/keep-git-in-sync/pkg/event"
)

type mockLog struct{}

func (m *mockLog) Debugf(format string, args ...interface{}) {}
func (m *mockLog) Infof(format string, args ...interface{})  {}
func (m *mockLog) Errorf(format string, args ...interface{}) {}

type mockSender struct {
	sync.Mutex
	changes []event.Change
}

func (m *mockSender) Send(change event.Change) {
	m.Lock()
	defer m.Unlock()
	m.changes = append(m.changes, change)
}

func (m *mockSender) count(path string) int {
	m.Lock()
	defer m.Unlock()
	n := 0
	for _, c := range m.changes {
		if c.Path == path {
			n++
		}
	}
	return n
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestNotifier(t *testing.T) {
	root := tempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "existing"), 0750))

	events := event.New()
	defer events.ShutDown()

	notif, err := New(new(mockLog), events, []string{root}, 0).Start()
	require.NoError(t, err)
	defer notif.Stop()

	file := filepath.Join(root, "existing", "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("1"), 0600))

	change := waitFor(t, events, file)
	assert.Contains(t, []event.Kind{event.Created, event.Modified}, change.Kind)

	// new directories are watched too
	sub := filepath.Join(root, "new")
	require.NoError(t, os.MkdirAll(sub, 0750))
	waitFor(t, events, sub)

	nested := filepath.Join(sub, "b.txt")
	require.NoError(t, os.WriteFile(nested, []byte("2"), 0600))
	waitFor(t, events, nested)

	require.NoError(t, os.Remove(nested))
	change = waitFor(t, events, nested)
	assert.Equal(t, event.Removed, change.Kind)
}

func TestDebounce(t *testing.T) {
	root := tempDir(t)
	sender := new(mockSender)

	notif, err := New(new(mockLog), sender, []string{root}, 200*time.Millisecond).Start()
	require.NoError(t, err)

	file := filepath.Join(root, "a.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte{byte('0' + i)}, 0600))
	}

	assert.Eventually(t, func() bool { return sender.count(file) > 0 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, sender.count(file), "a burst of changes is notified once")

	notif.Stop()

	// nothing is sent once stopped
	require.NoError(t, os.WriteFile(file, []byte("late"), 0600))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, sender.count(file))
}

func TestStartFailure(t *testing.T) {
	_, err := New(new(mockLog), new(mockSender), []string{"/hopefully/non/existent/path"}, 0).Start()
	assert.Error(t, err)
}

// waitFor returns the first change on path, discarding others
func waitFor(t *testing.T, events *event.Notifier, path string) event.Change {
	t.Helper()

	found := make(chan event.Change, 1)
	go func() {
		for {
			change, ok := events.Get()
			if !ok {
				return
			}
			events.Done(change)
			if change.Path == path {
				found <- change
				return
			}
		}
	}()

	select {
	case change := <-found:
		return change
	case <-time.After(5 * time.Second):
		t.Fatalf("no change notified for %s", path)
	}
	return event.Change{}
}
