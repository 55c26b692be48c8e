// Package probe measures reachability and latency of candidate endpoints
// through a tiered fallback of probing strategies, and ranks batches of
// candidates by measured latency.
package probe

import (
	"context"
	"time"
)

// Result is the normalized outcome of one probe attempt. It is ephemeral:
// never persisted and owned exclusively by the call that produced it.
// Millisecond fields are -1 when not measured.
type Result struct {
	Success bool
	TotalMS int
	DNSMS   int
	TCPMS   int
	TTFBMS  int
	Score   float64
	// ErrorType classifies the failure; empty on success.
	ErrorType string
	// Tier names the strategy that produced this result.
	Tier Tier
}

// Tier identifies one probing strategy, ordered by cost and accuracy.
type Tier string

const (
	TierFull  Tier = "full"
	TierQuick Tier = "quick"
	TierRaw   Tier = "raw"
)

// Failed builds a normalized failure result.
func Failed(tier Tier, errorType string) Result {
	return Result{
		Success:   false,
		TotalMS:   -1,
		DNSMS:     -1,
		TCPMS:     -1,
		TTFBMS:    -1,
		ErrorType: errorType,
		Tier:      tier,
	}
}

// LatencyMS normalizes the latency signal of a successful result: the full
// tier prefers time-to-first-byte, every tier falls back to total time.
func (r Result) LatencyMS() int {
	if !r.Success {
		return -1
	}
	if r.Tier == TierFull && r.TTFBMS > 0 {
		return r.TTFBMS
	}
	return r.TotalMS
}

// FullProber runs an application-level request through the candidate and
// measures time-to-first-byte. It reflects real usability including
// content-layer failures, and is implemented outside this core (the tunnel
// transport is a collaborator).
type FullProber interface {
	FullProbe(ctx context.Context, descriptor string, attempts int) Result
}

// QuickProber measures DNS resolution plus TCP connect only: far cheaper
// than a full probe, giving a latency signal without validating
// application-layer reachability.
type QuickProber interface {
	QuickProbe(ctx context.Context, descriptor string) Result
}

// RawTester is the last-resort direct measurement: a bare yes/no plus
// latency.
type RawTester interface {
	RawConnect(ctx context.Context, descriptor string, timeout time.Duration) (int, error)
}
