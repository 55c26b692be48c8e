package main

import (
	"os"

	"github.com/spf13/cobra"

	"subrank/internal/logger"
)

var removeCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a subscription",
	Long:  `Remove a subscription by id (or unambiguous id prefix), stopping its refresh worker and deleting its persisted record.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, st := openStore()
		defer st.Close()

		id := resolveID(st, args[0])
		if id == "" {
			logger.Log.Errorf("No subscription matches id %q", args[0])
			os.Exit(1)
		}

		if !st.RemoveByID(id) {
			logger.Log.Errorf("Subscription not found: %s", id)
			os.Exit(1)
		}
		logger.Log.Infof("Removed subscription %s", id[:12])
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
