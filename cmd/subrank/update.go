package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"subrank/internal/logger"
)

var updateCmd = &cobra.Command{
	Use:   "update [ID]",
	Short: "Re-fetch one subscription, or all of them",
	Long:  `Fetch the given subscription (by id or prefix), or every subscription when no id is given. One feed's failure never aborts the rest.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, st := openStore()
		defer st.Close()

		ctx := context.Background()

		if len(args) == 1 {
			id := resolveID(st, args[0])
			if id == "" {
				logger.Log.Errorf("No subscription matches id %q", args[0])
				os.Exit(1)
			}
			if err := st.UpdateByID(ctx, id); err != nil {
				logger.Log.Errorf("Update failed: %v", err)
				os.Exit(exitCode(err))
			}
			sub := st.Get(id)
			logger.Log.Infof("Updated %s: %d endpoints", sub.Name, len(sub.Configs()))
			return
		}

		results := st.UpdateAll(ctx)
		success, failed := 0, 0
		for id, err := range results {
			sub := st.Get(id)
			if err != nil {
				logger.Log.Errorf("Failed to update %s: %v", sub.Name, err)
				failed++
				continue
			}
			logger.Log.Infof("Updated %s: %d endpoints", sub.Name, len(sub.Configs()))
			success++
		}
		logger.Log.Infof("Update complete: %d succeeded, %d failed", success, failed)
		if success == 0 && failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
