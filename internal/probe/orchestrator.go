package probe

import (
	"context"
	"sort"
	"sync"
	"time"

	"subrank/internal/endpoint"
	"subrank/internal/logger"
)

// Orchestrator runs the tiered fallback over the configured probers. A nil
// tier is treated as unavailable and skipped. No tier is retried
// internally; the retry, if any, is the next tier.
type Orchestrator struct {
	Full  FullProber
	Quick QuickProber
	Raw   RawTester

	// FullAttempts is passed through to the full prober (default 1).
	FullAttempts int
	// QuickTimeout and RawTimeout bound the cheaper tiers independently.
	QuickTimeout time.Duration
	RawTimeout   time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	// OnResult, when set, observes every normalized batch result. It may
	// be called from multiple goroutines.
	OnResult func(ep *endpoint.Record, res Result)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) quickTimeout() time.Duration {
	if o.QuickTimeout > 0 {
		return o.QuickTimeout
	}
	return 5 * time.Second
}

func (o *Orchestrator) rawTimeout() time.Duration {
	if o.RawTimeout > 0 {
		return o.RawTimeout
	}
	return 5 * time.Second
}

// Evaluate probes one endpoint, trying strategies in strict order and
// stopping at the first success. When every tier fails, the normalized
// result is a failure with latency -1 carrying the last attempted tier's
// error classification.
func (o *Orchestrator) Evaluate(ctx context.Context, ep *endpoint.Record) Result {
	last := Failed(TierRaw, "no prober available")

	if o.Full != nil {
		attempts := o.FullAttempts
		if attempts < 1 {
			attempts = 1
		}
		res := o.Full.FullProbe(ctx, ep.ConfigString, attempts)
		res.Tier = TierFull
		if res.Success {
			return res
		}
		logger.Log.Debugf("Full probe failed for %s: %s", ep.Name, res.ErrorType)
		last = res
	}

	if o.Quick != nil {
		qctx, cancel := context.WithTimeout(ctx, o.quickTimeout())
		res := o.Quick.QuickProbe(qctx, ep.ConfigString)
		cancel()
		res.Tier = TierQuick
		if res.Success {
			return res
		}
		logger.Log.Debugf("Quick probe failed for %s: %s", ep.Name, res.ErrorType)
		last = res
	}

	if o.Raw != nil {
		latency, err := o.Raw.RawConnect(ctx, ep.ConfigString, o.rawTimeout())
		if err == nil {
			return Result{Success: true, TotalMS: latency, DNSMS: -1, TCPMS: latency, TTFBMS: -1, Tier: TierRaw}
		}
		logger.Log.Debugf("Raw connectivity test failed for %s: %v", ep.Name, err)
		last = Failed(TierRaw, Classify(err))
	}

	return Failed(last.Tier, last.ErrorType)
}

// Ranked pairs an endpoint with its measured latency.
type Ranked struct {
	Endpoint  *endpoint.Record
	LatencyMS int
	Tier      Tier
}

// Batch evaluates many candidates and returns the successes sorted
// ascending by latency; ties keep input order so output is deterministic.
// Each candidate gets its own timeout, so a hung candidate cannot delay or
// block completion of the others. parallel=false evaluates one at a time;
// otherwise a bounded pool of workers runs them concurrently. Endpoint
// statistics are updated in place for every candidate, success or failure.
func (o *Orchestrator) Batch(ctx context.Context, candidates []*endpoint.Record, timeout time.Duration, parallel bool, workers int) []Ranked {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if workers < 1 {
		workers = 1
	}
	if !parallel {
		workers = 1
	}

	type indexed struct {
		idx    int
		ranked Ranked
	}

	var mu sync.Mutex
	var hits []indexed

	probeOne := func(idx int, ep *endpoint.Record) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res := o.Evaluate(cctx, ep)
		ep.RecordResult(res.Success, res.LatencyMS(), o.now())
		if o.OnResult != nil {
			o.OnResult(ep, res)
		}

		if res.Success {
			mu.Lock()
			hits = append(hits, indexed{idx: idx, ranked: Ranked{
				Endpoint:  ep,
				LatencyMS: res.LatencyMS(),
				Tier:      res.Tier,
			}})
			mu.Unlock()
		}
	}

	if workers == 1 {
		for i, ep := range candidates {
			probeOne(i, ep)
		}
	} else {
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for i, ep := range candidates {
			sem <- struct{}{}
			wg.Add(1)
			go func(idx int, e *endpoint.Record) {
				defer func() { <-sem }()
				defer wg.Done()
				probeOne(idx, e)
			}(i, ep)
		}
		wg.Wait()
	}

	// Restore input order first, then a stable sort on latency keeps the
	// input order as the tie-break.
	sort.Slice(hits, func(i, j int) bool { return hits[i].idx < hits[j].idx })
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].ranked.LatencyMS < hits[j].ranked.LatencyMS })

	out := make([]Ranked, len(hits))
	for i, h := range hits {
		out[i] = h.ranked
	}
	return out
}

// Top returns the best n ranked results (fewer when the list is shorter).
func Top(ranked []Ranked, n int) []Ranked {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
