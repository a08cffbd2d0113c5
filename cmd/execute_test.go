package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// most of cli binding code is executed through the magical init() mecanism
func TestRootCmd(t *testing.T) {
	FakeVCS = true
	defer func() { FakeVCS = false }()

	RootCmd.SetOutput(new(bytes.Buffer))
	RootCmd.SetArgs([]string{
		"--config",
		"/dev/null",
		"--dry-run",
		"--watch",
		t.TempDir(),
		"--log-level",
		"warning",
		"--log-output",
		"test",
		"--healthcheck-port",
		"0",
		"--debounce",
		"10",
		"--resync-interval",
		"1",
	})

	ch := make(chan error, 1)

	go func() {
		ch <- Execute()
	}()

	time.Sleep(time.Second)
	_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-ch:
		if err != nil {
			t.Errorf("Failed to execute the main command: %+v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Timeout waiting for the execute command to exit after SIGTERM")
	}

	RootCmd.SetArgs([]string{
		"--dry-run",
		"--log-output",
		"syslog",
		"--log-server",
		"",
	})
	if err := Execute(); err == nil {
		t.Error("Execute() should fail when logging can't be setup")
	}

	RootCmd.SetArgs([]string{
		"--dry-run",
		"--config",
	})
	if err := Execute(); err == nil {
		t.Error("Execute() should fail with missing flags arguments")
	}
}

func TestVersion(t *testing.T) {
	RootCmd.SetOutput(new(bytes.Buffer))
	RootCmd.SetArgs([]string{"version"})
	if err := RootCmd.Execute(); err != nil {
		t.Errorf("version subcommand shouldn't fail: %+v", err)
	}
}

func TestRemoteURLs(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	content := "remote-urls:\n" +
		"  - path: /home/Alice/Notes\n" +
		"    url: git@example.com:Alice/Notes.git\n" +
		"  - path: /srv/wiki\n" +
		"    url: /srv/backup/wiki.git\n"
	if err := os.WriteFile(cfg, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(cfg)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	urls, err := readRemoteURLs(v)
	if err != nil {
		t.Fatalf("failed to read remote-urls: %v", err)
	}

	expected := map[string]string{
		"/home/Alice/Notes": "git@example.com:Alice/Notes.git",
		"/srv/wiki":         "/srv/backup/wiki.git",
	}
	if !reflect.DeepEqual(urls, expected) {
		t.Errorf("remote-urls paths and urls should be kept as is, got %v", urls)
	}

	urls, err = readRemoteURLs(viper.New())
	if err != nil || len(urls) != 0 {
		t.Errorf("remote-urls is optional (%v, %v)", urls, err)
	}

	v = viper.New()
	v.Set("remote-urls", []map[string]string{{"path": "/srv/wiki"}})
	if _, err = readRemoteURLs(v); err == nil {
		t.Error("an entry without url should be rejected")
	}
}
