// Package run implements the main keep-git-in-sync's loop, starting and
// stopping all services.
package run

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/silvadanilo/keep-git-in-sync/config"
	"github.com/silvadanilo/keep-git-in-sync/pkg/event"
	"github.com/silvadanilo/keep-git-in-sync/pkg/health"
	"github.com/silvadanilo/keep-git-in-sync/pkg/notifier"
	"github.com/silvadanilo/keep-git-in-sync/pkg/orchestrator"
	"github.com/silvadanilo/keep-git-in-sync/pkg/registry"
)

// Run launchs the services, and blocks until SIGTERM or SIGINT
func Run(config *config.KgsConfig) error {
	reg := registry.New(config.Logger, config.Opener, config.Watch)
	if err := reg.Skipped(); err != nil {
		config.Logger.Warnf("Some paths won't be watched: %v", err)
	}
	if reg.Len() == 0 {
		config.Logger.Warnf("No repository to watch")
	}

	evts := event.New()
	orch := orchestrator.New(config, reg, evts).Start()

	notif, err := notifier.New(config.Logger, evts, reg.Roots(), config.Debounce).Start()
	if err != nil {
		orch.Stop()
		config.Logger.Errorf("failed to start the filesystem notifier: %v", err)
		return fmt.Errorf("failed to start the filesystem notifier: %v", err)
	}

	http, err := health.New(config, orch).Start()
	if err != nil {
		notif.Stop()
		orch.Stop()
		config.Logger.Errorf("failed to start http healtcheck handler: %v", err)
		return fmt.Errorf("failed to start http healtcheck handler: %v", err)
	}

	// pick up changes made while we weren't running
	orch.Resync()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM)
	signal.Notify(sigterm, syscall.SIGINT)
	<-sigterm
	signal.Stop(sigterm)

	notif.Stop()
	orch.Stop()
	http.Stop()

	return nil
}
