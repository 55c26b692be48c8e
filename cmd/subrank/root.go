package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"subrank/internal/config"
	"subrank/internal/logger"
	"subrank/internal/store"
	"subrank/internal/subscription"
)

var cfgFile string
var verbose bool
var logFile string

var rootCmd = &cobra.Command{
	Use:   "subrank",
	Short: "Aggregate proxy subscriptions and rank endpoints by measured latency",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(verbose, logFile)
	},
	PostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// openStore loads config and opens the subscription store; both failures
// are fatal for every subcommand.
func openStore() (*config.Config, *store.Store) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Log.Fatalf("Error loading config: %v", err)
	}

	st, err := store.Open(cfg.Storage.Dir, store.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		FetchTimeout: cfg.Fetch.Timeout,
	})
	if err != nil {
		logger.Log.Fatalf("Error opening subscription store: %v", err)
	}
	return cfg, st
}

// exitCode maps the error taxonomy onto something scriptable: validation
// problems are usage errors, everything else is a plain failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var verr *subscription.ValidationError
	if errors.As(err, &verr) {
		return 2
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (overwrites file)")
}
