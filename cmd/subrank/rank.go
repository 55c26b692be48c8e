package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"subrank/internal/endpoint"
	"subrank/internal/geoip"
	"subrank/internal/history"
	"subrank/internal/logger"
	"subrank/internal/metrics"
	"subrank/internal/probe"
)

var (
	flagRankTimeout    time.Duration
	flagRankWorkers    int
	flagRankSequential bool
	flagRankTop        int
	flagRankReport     bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Probe endpoints and rank them by latency",
	Long:  `Filter endpoints, probe each through the tiered fallback (full, quick, raw), and print the survivors sorted ascending by latency. Updated statistics are persisted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, st := openStore()
		defer st.Close()

		res, err := st.Filter(filterFromFlags(cmd))
		if err != nil {
			logger.Log.Errorf("Invalid filter: %v", err)
			os.Exit(exitCode(err))
		}
		candidates := res.Endpoints
		if len(candidates) == 0 {
			logger.Log.Warn("No endpoints to probe.")
			return
		}

		timeout := cfg.Probe.Timeout
		if cmd.Flags().Changed("timeout") {
			timeout = flagRankTimeout
		}
		workers := cfg.Probe.WorkerCount
		if flagRankWorkers > 0 {
			workers = flagRankWorkers
		}

		var archive *history.Archive
		if cfg.History.Path != "" {
			archive, err = history.Open(cfg.History.Path)
			if err != nil {
				logger.Log.Warnf("Probe history disabled: %v", err)
				archive = nil
			}
		}

		var geo *geoip.Resolver
		if cfg.GeoIP.CountryPath != "" || cfg.GeoIP.ASNPath != "" {
			geo, err = geoip.Open(cfg.GeoIP.ASNPath, cfg.GeoIP.CountryPath)
			if err != nil {
				logger.Log.Warnf("GeoIP tagging disabled: %v", err)
				geo = nil
			} else {
				defer geo.Close()
			}
		}

		logger.Log.Infof("Probing %d endpoints (workers: %d, timeout: %s)...", len(candidates), workers, timeout)

		bar := progressbar.NewOptions(len(candidates),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(15),
			progressbar.OptionSetDescription("[cyan]Probing...[reset]"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)

		// Endpoint records carry no back-pointer to their feed; map them to
		// their owning subscription so history rows name their source.
		owners := make(map[*endpoint.Record]string)
		for _, sub := range st.List() {
			for _, rec := range sub.Configs() {
				owners[rec] = sub.ID()
			}
		}

		collector := metrics.New()
		netProber := probe.NewNetProber()
		orch := &probe.Orchestrator{
			Quick:        netProber,
			Raw:          netProber,
			FullAttempts: cfg.Probe.FullAttempts,
			QuickTimeout: cfg.Probe.QuickTimeout,
			RawTimeout:   cfg.Probe.RawTimeout,
			OnResult: func(ep *endpoint.Record, r probe.Result) {
				bar.Add(1)
				if r.Success {
					collector.RecordSuccess(string(r.Tier), r.LatencyMS())
				} else {
					collector.RecordFailure(r.ErrorType)
				}
				if archive != nil {
					archive.Record(ep.ConfigString, owners[ep], r.Success, r.LatencyMS(), string(r.Tier), r.ErrorType)
				}
			},
		}

		ranked := orch.Batch(context.Background(), candidates, timeout, !flagRankSequential, workers)
		fmt.Fprint(os.Stderr, "\n")

		if geo != nil {
			for _, r := range ranked {
				tagEndpoint(geo, r.Endpoint)
			}
		}

		// Endpoint statistics changed in place; write every feed back out.
		for _, sub := range st.List() {
			st.Persist(sub)
		}

		top := probe.Top(ranked, flagRankTop)
		if len(top) == 0 {
			logger.Log.Warnf("No reachable endpoints out of %d probed.", len(candidates))
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tPROTOCOL\tADDRESS\tLATENCY\tTIER\tTAGS")
		for i, r := range top {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s:%d\t%dms\t%s\t%s\n",
				i+1, r.Endpoint.Name, r.Endpoint.Protocol,
				r.Endpoint.Address, r.Endpoint.Port,
				r.LatencyMS, r.Tier, tagList(r.Endpoint.Tags),
			)
		}
		w.Flush()

		if flagRankReport {
			collector.PrintReport(workers)
		}
	},
}

func tagEndpoint(geo *geoip.Resolver, ep *endpoint.Record) {
	res, err := geo.Lookup(ep.Address)
	if err != nil {
		return
	}
	if res.Country != "" {
		ep.AddTag("country:" + res.Country)
	}
	if res.ISP != "" {
		ep.AddTag("isp:" + res.ISP)
	}
}

func init() {
	addFilterFlags(rankCmd)
	rankCmd.Flags().DurationVar(&flagRankTimeout, "timeout", 10*time.Second, "Per-candidate probe budget")
	rankCmd.Flags().IntVar(&flagRankWorkers, "workers", 0, "Override worker count")
	rankCmd.Flags().BoolVar(&flagRankSequential, "sequential", false, "Probe one endpoint at a time")
	rankCmd.Flags().IntVar(&flagRankTop, "top", 0, "Show only the best N endpoints (0 = all)")
	rankCmd.Flags().BoolVar(&flagRankReport, "report", false, "Print the probe metrics report")
	rootCmd.AddCommand(rankCmd)
}
