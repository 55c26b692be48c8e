package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"subrank/internal/logger"
	"subrank/internal/store"
)

var (
	flagProtocols      []string
	flagMinSuccessRate float64
	flagMaxLatency     int
	flagSubTags        []string
	flagConfigTags     []string
	flagNameRegex      string
)

// filterFromFlags builds the filter options shared by the endpoints and
// rank commands. Cobra's Changed tracking distinguishes "not requested"
// from a zero value.
func filterFromFlags(cmd *cobra.Command) store.FilterOptions {
	opts := store.FilterOptions{
		Protocols:        flagProtocols,
		SubscriptionTags: flagSubTags,
		ConfigTags:       flagConfigTags,
		NameRegex:        flagNameRegex,
	}
	if cmd.Flags().Changed("min-success-rate") {
		v := flagMinSuccessRate
		opts.MinSuccessRate = &v
	}
	if cmd.Flags().Changed("max-latency") {
		v := flagMaxLatency
		opts.MaxLatency = &v
	}
	return opts
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&flagProtocols, "protocols", nil, "Restrict to protocols (vmess,vless,trojan,ss,ssr)")
	cmd.Flags().Float64Var(&flagMinSuccessRate, "min-success-rate", 0, "Minimum success rate in [0,1]; only tested endpoints qualify")
	cmd.Flags().IntVar(&flagMaxLatency, "max-latency", 0, "Maximum last latency in ms; only tested endpoints qualify")
	cmd.Flags().StringSliceVar(&flagSubTags, "sub-tags", nil, "Restrict to subscriptions carrying any of these tags")
	cmd.Flags().StringSliceVar(&flagConfigTags, "tags", nil, "Require all of these endpoint tags")
	cmd.Flags().StringVar(&flagNameRegex, "name-regex", "", "Regex the endpoint name must match")
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List endpoints across all subscriptions, with filtering",
	Run: func(cmd *cobra.Command, args []string) {
		_, st := openStore()
		defer st.Close()

		res, err := st.Filter(filterFromFlags(cmd))
		if err != nil {
			logger.Log.Errorf("Invalid filter: %v", err)
			os.Exit(exitCode(err))
		}

		if len(res.Endpoints) == 0 {
			if res.NothingTested {
				fmt.Println("No matches: no endpoint has been tested yet. Run `subrank rank` first.")
			} else {
				fmt.Println("No endpoints match the given filters.")
			}
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPROTOCOL\tADDRESS\tPORT\tLATENCY\tOK/FAIL\tTAGS")
		for _, ep := range res.Endpoints {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d/%d\t%s\n",
				ep.Name, ep.Protocol, ep.Address, ep.Port,
				formatLatency(ep.LastLatency),
				ep.SuccessCount, ep.FailureCount,
				tagList(ep.Tags),
			)
		}
		w.Flush()
	},
}

func formatLatency(ms int) string {
	if ms < 0 {
		return "untested"
	}
	return fmt.Sprintf("%dms", ms)
}

func tagList(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	out := tags[0]
	for _, t := range tags[1:] {
		out += "," + t
	}
	return out
}

func init() {
	addFilterFlags(endpointsCmd)
	rootCmd.AddCommand(endpointsCmd)
}
