// Package metrics aggregates the outcome of one batch probing run and
// prints a tuning report: latency percentiles per tier and the error mix,
// with a saturation hint when timeouts dominate.
package metrics

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"
)

type Collector struct {
	mu sync.Mutex

	latencies []time.Duration

	successByTier map[string]int
	totalSuccess  int

	errorCounts   map[string]int
	totalErrors   int
	timeoutErrors int
}

func New() *Collector {
	return &Collector{
		successByTier: make(map[string]int),
		errorCounts:   make(map[string]int),
	}
}

func (c *Collector) RecordSuccess(tier string, latencyMS int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies = append(c.latencies, time.Duration(latencyMS)*time.Millisecond)
	c.successByTier[tier]++
	c.totalSuccess++
}

func (c *Collector) RecordFailure(errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalErrors++
	if errorType == "" {
		errorType = "unknown"
	}
	if errorType == "timeout" {
		c.timeoutErrors++
	}
	c.errorCounts[errorType]++
}

func (c *Collector) PrintReport(workers int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Println("\nPROBE REPORT")
	fmt.Println("────────────────────────────────────────")

	if len(c.latencies) > 0 {
		sort.Slice(c.latencies, func(i, j int) bool { return c.latencies[i] < c.latencies[j] })

		p50 := c.latencies[len(c.latencies)/2]
		p90 := c.latencies[int(float64(len(c.latencies))*0.9)]

		fmt.Fprintln(w, "[ LATENCY (successful endpoints) ]")
		fmt.Fprintf(w, "  Avg:\t%v\n", average(c.latencies))
		fmt.Fprintf(w, "  p50:\t%v\n", p50)
		fmt.Fprintf(w, "  p90:\t%v\n", p90)
		fmt.Fprintln(w, "")
	}

	fmt.Fprintln(w, "[ TIER BREAKDOWN ]")
	if c.totalSuccess > 0 {
		fmt.Fprintf(w, "  Total reachable:\t%d\n", c.totalSuccess)
		for _, tier := range []string{"full", "quick", "raw"} {
			if n := c.successByTier[tier]; n > 0 {
				pct := float64(n) / float64(c.totalSuccess) * 100
				fmt.Fprintf(w, "  Succeeded on %s tier:\t%d (%.1f%%)\n", tier, n, pct)
			}
		}
	} else {
		fmt.Fprintln(w, "  No reachable endpoints.")
	}
	fmt.Fprintln(w, "")

	fmt.Fprintln(w, "[ FAILURES ]")
	fmt.Fprintf(w, "  Total failures:\t%d\n", c.totalErrors)
	if c.totalErrors > 0 {
		for k, v := range c.errorCounts {
			fmt.Fprintf(w, "  %s:\t%d\n", k, v)
		}
		timeoutPct := float64(c.timeoutErrors) / float64(c.totalErrors) * 100
		if timeoutPct > 70 {
			fmt.Fprintln(w, "  --------------------------------")
			fmt.Fprintf(w, "  %.0f%% of failures are timeouts; the local network stack\n", timeoutPct)
			fmt.Fprintf(w, "  may be saturated. Consider lowering worker_count (now %d).\n", workers)
		}
	}

	w.Flush()
	fmt.Println("")
}

func average(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return time.Duration(int64(sum) / int64(len(d)))
}
