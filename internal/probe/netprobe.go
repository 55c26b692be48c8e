package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"subrank/internal/endpoint"
)

// NetProber implements the quick and raw tiers directly against the
// endpoint's server address: DNS resolution plus TCP connect timing for the
// quick tier, a single timed dial for the raw tier. Application-layer
// reachability through the tunnel is not validated here; that is the full
// prober's job.
type NetProber struct {
	Resolver *net.Resolver
	Dialer   *net.Dialer
}

// NewNetProber builds a prober using the default resolver and dialer.
func NewNetProber() *NetProber {
	return &NetProber{
		Resolver: net.DefaultResolver,
		Dialer:   &net.Dialer{},
	}
}

// QuickProbe resolves the endpoint host and opens one TCP connection,
// reporting both phases' timings.
func (p *NetProber) QuickProbe(ctx context.Context, descriptor string) Result {
	addr, port, err := targetOf(descriptor)
	if err != nil {
		return Failed(TierQuick, "bad descriptor")
	}

	start := time.Now()

	dialHost := addr
	dnsMS := 0
	if net.ParseIP(addr) == nil {
		ips, err := p.Resolver.LookupIPAddr(ctx, addr)
		if err != nil || len(ips) == 0 {
			return Failed(TierQuick, "dns")
		}
		dnsMS = int(time.Since(start).Milliseconds())
		dialHost = ips[0].IP.String()
	}

	connStart := time.Now()
	conn, err := p.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(dialHost, strconv.Itoa(port)))
	if err != nil {
		return Failed(TierQuick, Classify(err))
	}
	conn.Close()

	tcpMS := int(time.Since(connStart).Milliseconds())
	return Result{
		Success: true,
		TotalMS: int(time.Since(start).Milliseconds()),
		DNSMS:   dnsMS,
		TCPMS:   tcpMS,
		TTFBMS:  -1,
		Tier:    TierQuick,
	}
}

// RawConnect is the bare yes/no connectivity test: one dial, wall-clock
// latency in milliseconds.
func (p *NetProber) RawConnect(ctx context.Context, descriptor string, timeout time.Duration) (int, error) {
	addr, port, err := targetOf(descriptor)
	if err != nil {
		return -1, err
	}

	dialer := *p.Dialer
	dialer.Timeout = timeout

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return -1, err
	}
	conn.Close()
	return int(time.Since(start).Milliseconds()), nil
}

func targetOf(descriptor string) (string, int, error) {
	rec := endpoint.Parse(descriptor)
	if rec.Address == endpoint.UnknownAddress {
		return "", 0, fmt.Errorf("no server address in descriptor")
	}
	return rec.Address, rec.Port, nil
}

// Classify buckets a probe error into a short diagnostic label.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "refused"):
		return "refused"
	case strings.Contains(msg, "reset"):
		return "reset"
	case strings.Contains(msg, "no such host"):
		return "dns"
	case strings.Contains(msg, "EOF"):
		return "eof"
	default:
		return "unknown"
	}
}
