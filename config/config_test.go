package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/silvadanilo/keep-git-in-sync/pkg/log"
)

func TestConfig(t *testing.T) {
	logger, _ := log.New("info", "", "test")

	conf := &KgsConfig{Logger: logger}
	if err := conf.Init(); err == nil {
		t.Error("conf.Init() should fail without directory to watch")
	}

	conf = &KgsConfig{Watch: []string{"/tmp"}}
	if err := conf.Init(); err == nil {
		t.Error("conf.Init() should fail without logger")
	}

	conf = &KgsConfig{Logger: logger, Watch: []string{"/tmp"}, Debounce: -time.Second}
	if err := conf.Init(); err == nil {
		t.Error("conf.Init() should fail on negative durations")
	}

	conf = &KgsConfig{Logger: logger, Watch: []string{"/tmp"}, HealthPort: 70000}
	if err := conf.Init(); err == nil {
		t.Error("conf.Init() should fail on out of range ports")
	}

	conf = FakeConfig()
	if err := conf.Init(); err != nil {
		t.Errorf("conf.Init() shouldn't fail with a fake opener: %v", err)
	}
}

func TestFakeOpener(t *testing.T) {
	opener := FakeOpener()

	repo, err := opener.Open("/some/where")
	if err != nil {
		t.Fatal(err)
	}

	if repo.Root() != "/some/where" {
		t.Errorf("unexpected root %s", repo.Root())
	}
}

func TestRemoteURLsNormalization(t *testing.T) {
	conf := FakeConfig()
	conf.RemoteURLs = map[string]string{
		"/home/Alice/../Alice/Notes/": "mem://notes",
		"/srv/Wiki":                   "mem://wiki",
	}
	if err := conf.Init(); err != nil {
		t.Fatal(err)
	}

	expected := map[string]string{
		"/home/Alice/Notes": "mem://notes",
		"/srv/Wiki":         "mem://wiki",
	}
	if !reflect.DeepEqual(conf.RemoteURLs, expected) {
		t.Errorf("remote urls should be keyed by clean absolute roots, got %v", conf.RemoteURLs)
	}
}
