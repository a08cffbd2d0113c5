package health

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/silvadanilo/keep-git-in-sync/config"
	"github.com/silvadanilo/keep-git-in-sync/pkg/orchestrator"
)

type mockStatuses []orchestrator.Status

func (m mockStatuses) Statuses() []orchestrator.Status {
	return m
}

var statuses = mockStatuses{
	{Root: "/srv/a", State: "pushed", Commit: "abc1234", Time: time.Unix(0, 0).UTC()},
	{Root: "/srv/b", State: "conflicted", Error: "merge conflict on 1 path(s): a.txt", Time: time.Unix(0, 0).UTC()},
}

func TestNoopHealth(t *testing.T) {
	conf := config.FakeConfig()
	conf.HealthPort = 0

	// shouldn't listen with 0 as port
	hc, err := New(conf, statuses).Start()
	if err != nil {
		t.Errorf("Start shouldn't fail with port 0: %v", err)
	}
	hc.Stop()

	conf.HealthPort = -42
	if _, err = New(conf, statuses).Start(); err == nil {
		t.Error("Start should fail with a bogus port")
	}
}

func TestHealthCheck(t *testing.T) {
	hc := New(config.FakeConfig(), statuses)

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Error(err)
	}

	rr := httptest.NewRecorder()

	handler := http.HandlerFunc(hc.healthCheckReply)
	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("healthCheckReply handler didn't return an HTTP 200 status code")
	}
}

func TestStatus(t *testing.T) {
	hc := New(config.FakeConfig(), statuses)

	req, _ := http.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(hc.statusReply).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("statusReply handler didn't return an HTTP 200 status code")
	}

	body := rr.Body.String()
	for _, expected := range []string{"root: /srv/a", "state: pushed", "commit: abc1234", "state: conflicted", "merge conflict on 1 path(s)"} {
		if !strings.Contains(body, expected) {
			t.Errorf("status should contain %q, got:\n%s", expected, body)
		}
	}
}

func TestListener(t *testing.T) {
	// find a free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	conf := config.FakeConfig()
	conf.HealthPort = port

	hc, err := New(conf, statuses).Start()
	if err != nil {
		t.Fatal(err)
	}
	defer hc.Stop()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok\n" {
		t.Errorf("unexpected healthcheck reply %q", body)
	}

	if _, err = New(conf, statuses).Start(); err == nil {
		t.Error("Start should fail when the port is already in use")
	}
}
