package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subrank/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the auto-update workers in the foreground",
	Long:  `Keep the refresh workers of every auto-update subscription running until interrupted. Each worker re-fetches its feed on its own interval; a failed fetch is logged and retried on the next cycle.`,
	Run: func(cmd *cobra.Command, args []string) {
		_, st := openStore()
		defer st.Close()

		running := 0
		for _, sub := range st.List() {
			if sub.AutoUpdating() {
				running++
			}
		}
		if running == 0 {
			logger.Log.Warn("No subscription has auto-update enabled. Add one with: subrank add URL --auto-update")
			return
		}
		logger.Log.Infof("Watching %d subscriptions. Press Ctrl+C to stop.", running)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logger.Log.Info("Shutting down refresh workers...")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
