// Package health serves health checks over HTTP at /health endpoint, and
// the repositories last sync outcome as yaml at /status endpoint.
package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/ghodss/yaml"

	"github.com/silvadanilo/keep-git-in-sync/config"
	"github.com/silvadanilo/keep-git-in-sync/pkg/orchestrator"
)

// StatusProvider reports repositories status
type StatusProvider interface {
	Statuses() []orchestrator.Status
}

// Listener is an http health check listener
type Listener struct {
	config   *config.KgsConfig
	statuses StatusProvider
	donech   chan struct{}
	srv      *http.Server
}

// New create a new http health check listener
func New(config *config.KgsConfig, statuses StatusProvider) *Listener {
	return &Listener{
		config:   config,
		statuses: statuses,
		donech:   make(chan struct{}),
		srv:      nil,
	}
}

func (h *Listener) healthCheckReply(w http.ResponseWriter, r *http.Request) {
	if _, err := io.WriteString(w, "ok\n"); err != nil {
		h.config.Logger.Warningf("Failed to reply to http healtcheck from %s: %s\n", r.RemoteAddr, err)
	}
}

func (h *Listener) statusReply(w http.ResponseWriter, r *http.Request) {
	out, err := yaml.Marshal(h.statuses.Statuses())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	if _, err = w.Write(out); err != nil {
		h.config.Logger.Warningf("Failed to reply to http status from %s: %s\n", r.RemoteAddr, err)
	}
}

// Start exposes an http healthcheck handler
func (h *Listener) Start() (*Listener, error) {
	if h.config.HealthPort == 0 {
		return h, nil
	}

	h.config.Logger.Info("Starting http healtcheck handler")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", h.config.HealthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on healthcheck port %d: %v", h.config.HealthPort, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthCheckReply)
	mux.HandleFunc("/status", h.statusReply)
	h.srv = &http.Server{Handler: mux}

	go func() {
		defer close(h.donech)
		err := h.srv.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			h.config.Logger.Errorf("healthcheck server failed: %v", err)
		}
	}()

	return h, nil
}

// Stop halts the http health check handler
func (h *Listener) Stop() {
	if h.srv == nil {
		return
	}

	h.config.Logger.Info("Stopping http healtcheck handler")

	err := h.srv.Shutdown(context.TODO())
	if err != nil {
		h.config.Logger.Warningf("failed to stop http healtcheck handler: %v", err)
	}

	<-h.donech
}
