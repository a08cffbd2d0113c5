package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/silvadanilo/keep-git-in-sync/config"
	"github.com/silvadanilo/keep-git-in-sync/pkg/log"
	"github.com/silvadanilo/keep-git-in-sync/pkg/run"
)

const appName = "keep-git-in-sync"

var (
	// FakeVCS uses in-memory repositories instead of git
	FakeVCS bool

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   appName,
		Short: "Keep git working trees in sync with their remote",
		Long: "Watch git working trees, commit every change as soon as it happens, " +
			"merge remote changes and push the result.",

		SilenceUsage: true,
		PreRunE:      bindConf,
		RunE:         runE,
	}
)

func runE(cmd *cobra.Command, args []string) error {
	logger, err := log.New(logLevel, logServer, logOutput)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %v", err)
	}

	conf := &config.KgsConfig{
		DryRun:     dryRun,
		Logger:     logger,
		Watch:      watch,
		Remote:     remote,
		RemoteURL:  remoteURL,
		RemoteURLs: remoteURLs,
		Branch:     branch,
		Debounce:   time.Duration(debounce) * time.Millisecond,
		ResyncIntv: time.Duration(resyncInt) * time.Second,
		GitTimeout: time.Duration(gitTimeout) * time.Second,
		HealthPort: healthP,
	}

	if FakeVCS {
		conf.Opener = config.FakeOpener()
	}

	if err = conf.Init(); err != nil {
		return fmt.Errorf("failed to initialize the configuration: %v", err)
	}

	return run.Run(conf)
}

// Execute adds all child commands to the root command and sets their flags.
func Execute() error {
	return RootCmd.Execute()
}
