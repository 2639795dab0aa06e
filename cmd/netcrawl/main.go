// netcrawl is a network topology crawler: starting from a seed device
// reachable over SSH, it logs in, identifies the OS family, collects
// identity and inventory facts, discovers directly connected neighbors
// via CDP/LLDP, enqueues them, and persists the whole crawl to a local
// database so multiple workers can cooperate and the work survives
// restarts.
//
// Usage:
//
//	netcrawl --seed 10.0.0.1 --username admin --password secret
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netcrawl/netcrawl/internal/config"
	"github.com/netcrawl/netcrawl/internal/crawl"
	"github.com/netcrawl/netcrawl/internal/store"
	"github.com/netcrawl/netcrawl/pkg/util"
	"github.com/netcrawl/netcrawl/pkg/version"
)

// exit codes per the CLI contract: 0 clean shutdown, 1 configuration
// error, 2 unrecoverable store error at startup.
const (
	exitOK          = 0
	exitConfigError = 1
	exitStoreError  = 2
)

var flags config.Config
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}

var rootCmd = &cobra.Command{
	Use:           "netcrawl",
	Short:         "Crawl a network's topology over SSH",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	defaults := config.Defaults()
	rootCmd.Flags().StringVar(&flags.Seed, "seed", "", "seed device address (required)")
	rootCmd.Flags().StringVar(&flags.Username, "username", "", "SSH username (required)")
	rootCmd.Flags().StringVar(&flags.Password, "password", "", "SSH password")
	rootCmd.Flags().IntVar(&flags.Workers, "workers", defaults.Workers, "number of concurrent workers")
	rootCmd.Flags().StringVar(&flags.DBPath, "db-path", defaults.DBPath, "path to the persistent store")
	rootCmd.Flags().IntVar(&flags.MaxRetries, "max-retries", defaults.MaxRetries, "max automatic retries per device")
	rootCmd.Flags().BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&flags.EventsAddr, "events-addr", "", "optional Redis address for a transition feed")
	rootCmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file overlay")
}

func run(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	cfg := config.Merge(flags, fileCfg)

	if cfg.Debug {
		_ = util.SetLogLevel("debug")
	}

	if cfg.Password == "" && config.IsTerminal() {
		pw, err := config.PromptPassword(fmt.Sprintf("password for %s: ", cfg.Username))
		if err != nil {
			return err
		}
		cfg.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		util.Errorf("store open failed: %v", err)
		os.Exit(exitStoreError)
	}

	coordinator := crawl.New(cfg, st, externalParse)
	if err := coordinator.Start(); err != nil {
		util.Errorf("coordinator start failed: %v", err)
		os.Exit(exitStoreError)
	}

	util.Infof("netcrawl %s running; press Ctrl-C to stop", version.Version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	util.Info("shutdown signal received, draining workers...")
	if err := coordinator.Stop(); err != nil {
		util.Errorf("shutdown error: %v", err)
		return err
	}

	util.Info("netcrawl stopped cleanly")
	os.Exit(exitOK)
	return nil
}
