package event

import (
	"reflect"
	"testing"
)

var (
	change = Change{
		Path: "/tmp/repo/a.txt",
		Kind: Modified,
	}
)

func TestEvent(t *testing.T) {
	ev := New()

	go ev.Send(change)

	got, ok := ev.Get()
	if !ok {
		t.Fatal("Get shouldn't report a shutdown")
	}
	ev.Done(got)

	if !reflect.DeepEqual(change, got) {
		t.Errorf("notification failed: expected %v actual %v", change, got)
	}
}

func TestCoalesce(t *testing.T) {
	ev := New()

	ev.Send(change)
	ev.Send(change)
	ev.Send(Change{Path: change.Path, Kind: Removed})

	if ev.Len() != 2 {
		t.Errorf("identical pending changes should be coalesced, got %d", ev.Len())
	}

	ev.ShutDown()

	for i := 0; i < 2; i++ {
		got, ok := ev.Get()
		if !ok {
			t.Fatalf("pending changes should be drained before shutdown")
		}
		ev.Done(got)
	}

	if _, ok := ev.Get(); ok {
		t.Error("Get should return false after ShutDown")
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{Created: "created", Modified: "modified", Removed: "removed", Renamed: "renamed", Kind(42): "unknown"}
	for k, expected := range kinds {
		if k.String() != expected {
			t.Errorf("expected %s, got %s", expected, k.String())
		}
	}
}
