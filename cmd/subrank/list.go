package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"subrank/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	Run: func(cmd *cobra.Command, args []string) {
		_, st := openStore()
		defer st.Close()

		subs := st.List()
		if len(subs) == 0 {
			fmt.Println("No subscriptions. Add one with: subrank add URL")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tURL\tENDPOINTS\tLAST UPDATE\tAUTO\tOK/FAIL")
		for _, sub := range subs {
			_, ok, failed := sub.UpdateCounters()
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%d/%d\n",
				sub.ID()[:12],
				sub.Name,
				sub.URL(),
				len(sub.Configs()),
				formatEpoch(sub.LastUpdateTime()),
				onOff(sub.AutoUpdate()),
				ok,
				failed,
			)
		}
		w.Flush()
	},
}

// resolveID matches a full id or an unambiguous prefix against the store.
func resolveID(st *store.Store, arg string) string {
	if sub := st.Get(arg); sub != nil {
		return arg
	}
	var match string
	for _, sub := range st.List() {
		if strings.HasPrefix(sub.ID(), arg) {
			if match != "" {
				return "" // ambiguous
			}
			match = sub.ID()
		}
	}
	return match
}

func formatEpoch(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	rootCmd.AddCommand(listCmd)
}
