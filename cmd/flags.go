package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/silvadanilo/keep-git-in-sync/pkg/syncer"
)

var (
	cfgFile    string
	watch      []string
	remote     string
	remoteURL  string
	remoteURLs map[string]string
	branch     string
	debounce   int
	dryRun     bool
	logLevel   string
	logOutput  string
	logServer  string
	healthP    int
	resyncInt  int
	gitTimeout int
)

func bindPFlag(key string, cmd string) {
	if err := viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(cmd)); err != nil {
		log.Fatal("Failed to bind cli argument:", err)
	}
}

func init() {
	cobra.OnInitialize(loadConfigFile)
	RootCmd.AddCommand(versionCmd)

	defaultCfg := "/etc/" + appName + "/" + appName + ".yaml"
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultCfg, "Configuration file")

	RootCmd.PersistentFlags().StringSliceVarP(&watch, "watch", "w", nil, "Git working tree to keep in sync (repeatable)")
	bindPFlag("watch", "watch")

	RootCmd.PersistentFlags().StringVarP(&remote, "remote", "u", syncer.DefaultRemote, "Remote to sync with")
	bindPFlag("remote", "remote")

	RootCmd.PersistentFlags().StringVarP(&remoteURL, "remote-url", "g", "", "Remote URL, to create the remote where it's missing")
	bindPFlag("remote-url", "remote-url")

	RootCmd.PersistentFlags().StringVarP(&branch, "branch", "b", syncer.DefaultBranch, "Branch to sync")
	bindPFlag("branch", "branch")

	RootCmd.PersistentFlags().IntVarP(&debounce, "debounce", "D", 500, "Quiet period after a change, in milliseconds")
	bindPFlag("debounce", "debounce")

	RootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "d", false, "Dry-run mode: detect changes but don't commit nor push")
	bindPFlag("dry-run", "dry-run")

	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "v", "info", "Log level")
	bindPFlag("log-level", "log-level")

	RootCmd.PersistentFlags().StringVarP(&logOutput, "log-output", "o", "stderr", "Log output")
	bindPFlag("log-output", "log-output")

	RootCmd.PersistentFlags().StringVarP(&logServer, "log-server", "r", "", "Log server (if using syslog)")
	bindPFlag("log-server", "log-server")

	RootCmd.PersistentFlags().IntVarP(&healthP, "healthcheck-port", "p", 0, "Port for answering healthchecks on /health and /status urls")
	bindPFlag("healthcheck-port", "healthcheck-port")

	RootCmd.PersistentFlags().IntVarP(&resyncInt, "resync-interval", "i", 0, "Full resync interval in seconds (0 to disable)")
	bindPFlag("resync-interval", "resync-interval")

	RootCmd.PersistentFlags().IntVarP(&gitTimeout, "git-timeout", "t", 60, "Git commands timeout in seconds")
	bindPFlag("git-timeout", "git-timeout")
}

// remoteURLEntry is a "remote-urls" config file item. Paths are case
// sensitive while viper lowercases map keys, hence a list.
type remoteURLEntry struct {
	Path string `mapstructure:"path"`
	URL  string `mapstructure:"url"`
}

func readRemoteURLs(v *viper.Viper) (map[string]string, error) {
	var entries []remoteURLEntry
	if err := v.UnmarshalKey("remote-urls", &entries); err != nil {
		return nil, fmt.Errorf("invalid remote-urls: %v", err)
	}

	urls := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Path == "" || e.URL == "" {
			return nil, fmt.Errorf("invalid remote-urls entry %+v: path and url are required", e)
		}
		urls[e.Path] = e.URL
	}

	return urls, nil
}

// for whatever the reason, viper don't auto bind values from config file so we have to tell him
func bindConf(cmd *cobra.Command, args []string) error {
	var err error
	if remoteURLs, err = readRemoteURLs(viper.GetViper()); err != nil {
		return err
	}

	watch = viper.GetStringSlice("watch")
	remote = viper.GetString("remote")
	remoteURL = viper.GetString("remote-url")
	branch = viper.GetString("branch")
	debounce = viper.GetInt("debounce")
	dryRun = viper.GetBool("dry-run")
	logLevel = viper.GetString("log-level")
	logOutput = viper.GetString("log-output")
	logServer = viper.GetString("log-server")
	healthP = viper.GetInt("healthcheck-port")
	resyncInt = viper.GetInt("resync-interval")
	gitTimeout = viper.GetInt("git-timeout")

	return nil
}
