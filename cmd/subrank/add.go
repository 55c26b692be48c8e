package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"subrank/internal/logger"
	"subrank/internal/store"
)

var (
	flagAddName     string
	flagAddPriority int
	flagAddTags     []string
	flagAutoUpdate  bool
	flagInterval    time.Duration
	flagNoFetch     bool
)

var addCmd = &cobra.Command{
	Use:   "add URL",
	Short: "Add a subscription",
	Long:  `Add a subscription URL, fetch it immediately (unless --no-fetch), and persist it. With --auto-update a background refresh worker is registered.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, st := openStore()
		defer st.Close()

		sub, err := st.Add(context.Background(), store.AddOptions{
			URL:            args[0],
			Name:           flagAddName,
			Priority:       flagAddPriority,
			Tags:           flagAddTags,
			AutoUpdate:     flagAutoUpdate,
			UpdateInterval: flagInterval,
			FetchNow:       !flagNoFetch,
		})
		if err != nil {
			logger.Log.Errorf("Failed to add subscription: %v", err)
			os.Exit(exitCode(err))
		}

		logger.Log.Infof("Added %s (id %s) with %d endpoints", sub.Name, sub.ID()[:12], len(sub.Configs()))
	},
}

func init() {
	addCmd.Flags().StringVar(&flagAddName, "name", "", "Friendly name (defaults to URL host)")
	addCmd.Flags().IntVar(&flagAddPriority, "priority", 0, "Subscription priority")
	addCmd.Flags().StringSliceVar(&flagAddTags, "tags", nil, "Subscription tags")
	addCmd.Flags().BoolVar(&flagAutoUpdate, "auto-update", false, "Refresh this subscription in the background")
	addCmd.Flags().DurationVar(&flagInterval, "interval", 24*time.Hour, "Auto-update interval")
	addCmd.Flags().BoolVar(&flagNoFetch, "no-fetch", false, "Skip the initial fetch")
	rootCmd.AddCommand(addCmd)
}
