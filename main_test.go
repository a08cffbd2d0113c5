package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/silvadanilo/keep-git-in-sync/cmd"
)

func TestMainExit(t *testing.T) {
	var code int

	privateExitHandler = func(c int) {
		code = c
	}
	defer func() { privateExitHandler = os.Exit }()

	cmd.FakeVCS = true
	defer func() { cmd.FakeVCS = false }()

	out := new(bytes.Buffer)
	cmd.RootCmd.SetOutput(out)

	cmd.RootCmd.SetArgs([]string{"--help"})
	main()
	if code != 0 {
		t.Errorf("main() --help exited with %d", code)
	}
	for _, flag := range []string{"--watch", "--remote-url", "--branch", "--debounce", "--dry-run"} {
		if !strings.Contains(out.String(), flag) {
			t.Errorf("help should document %s", flag)
		}
	}
	_ = cmd.RootCmd.Flags().Set("help", "false")

	cmd.RootCmd.SetArgs([]string{"--unexpected-arg"})
	main()
	if code != 1 {
		t.Errorf("main() should exit with 1 on unexpected arguments, got %d", code)
	}

	code = 0
	cmd.RootCmd.SetArgs([]string{"--config", "/dev/null", "--log-output", "test"})
	main()
	if code != 1 {
		t.Errorf("main() should exit with 1 without repository to watch, got %d", code)
	}

	cfg := filepath.Join(t.TempDir(), "keep-git-in-sync.yaml")
	content := "remote-urls:\n  /srv/wiki: /srv/backup/wiki.git\n"
	if err := os.WriteFile(cfg, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	code = 0
	cmd.RootCmd.SetArgs([]string{"--config", cfg, "--log-output", "test", "--watch", t.TempDir()})
	main()
	if code != 1 {
		t.Errorf("main() should exit with 1 on a malformed remote-urls, got %d", code)
	}
}

func TestExitWrapper(t *testing.T) {
	var ok = false

	privateExitHandler = func(c int) {
		ok = true
	}
	defer func() { privateExitHandler = os.Exit }()

	ExitWrapper(1)

	if !ok {
		t.Errorf("Error in ExitWrapper()")
	}
}
