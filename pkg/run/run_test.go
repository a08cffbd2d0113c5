package run

import (
	"syscall"
	"testing"
	"time"

	"github.com/silvadanilo/keep-git-in-sync/config"
)

func TestRun(t *testing.T) {
	conf := config.FakeConfig(t.TempDir(), "/hopefully/non/existent/path")

	ch := make(chan error, 1)
	go func() {
		ch <- Run(conf)
	}()

	time.Sleep(500 * time.Millisecond)
	_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-ch:
		if err != nil {
			t.Errorf("Run failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Timeout waiting for Run to exit after SIGTERM")
	}
}

func TestRunHealthFailure(t *testing.T) {
	conf := config.FakeConfig(t.TempDir())
	conf.HealthPort = -1

	if err := Run(conf); err == nil {
		t.Error("Run should fail when the healthcheck can't listen")
	}
}
