package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

// listen opens a local TCP listener that accepts and closes connections.
func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln
}

func descriptorFor(addr net.Addr) string {
	host, port, _ := net.SplitHostPort(addr.String())
	return fmt.Sprintf("vless://u@%s:%s#local", host, port)
}

func TestQuickProbeSuccess(t *testing.T) {
	ln := listen(t)
	p := NewNetProber()

	res := p.QuickProbe(context.Background(), descriptorFor(ln.Addr()))
	if !res.Success {
		t.Fatalf("res = %+v", res)
	}
	if res.Tier != TierQuick {
		t.Errorf("tier = %s", res.Tier)
	}
	// An IP literal skips resolution entirely.
	if res.DNSMS != 0 {
		t.Errorf("DNSMS = %d for IP literal", res.DNSMS)
	}
	if res.TotalMS < 0 || res.TCPMS < 0 {
		t.Errorf("timings: %+v", res)
	}
}

func TestQuickProbeRefused(t *testing.T) {
	ln := listen(t)
	addr := ln.Addr().String()
	ln.Close()

	host, port, _ := net.SplitHostPort(addr)
	p := NewNetProber()
	res := p.QuickProbe(context.Background(), fmt.Sprintf("vless://u@%s:%s#gone", host, port))
	if res.Success {
		t.Fatal("probe of closed port succeeded")
	}
	if res.LatencyMS() != -1 {
		t.Errorf("latency = %d", res.LatencyMS())
	}
}

func TestQuickProbeBadDescriptor(t *testing.T) {
	p := NewNetProber()
	res := p.QuickProbe(context.Background(), "garbage")
	if res.Success || res.ErrorType != "bad descriptor" {
		t.Errorf("res = %+v", res)
	}
}

func TestRawConnect(t *testing.T) {
	ln := listen(t)
	p := NewNetProber()

	ms, err := p.RawConnect(context.Background(), descriptorFor(ln.Addr()), time.Second)
	if err != nil {
		t.Fatalf("RawConnect: %v", err)
	}
	if ms < 0 {
		t.Errorf("latency = %d", ms)
	}
}

func TestRawConnectFailure(t *testing.T) {
	ln := listen(t)
	addr := ln.Addr().String()
	ln.Close()

	host, port, _ := net.SplitHostPort(addr)
	p := NewNetProber()
	ms, err := p.RawConnect(context.Background(), fmt.Sprintf("vless://u@%s:%s#gone", host, port), time.Second)
	if err == nil {
		t.Fatal("dial of closed port succeeded")
	}
	if ms != -1 {
		t.Errorf("latency = %d, want -1", ms)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("dial tcp: i/o timeout"), "timeout"},
		{&net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, "refused"},
		{errors.New("read: connection reset by peer"), "reset"},
		{errors.New("lookup nope.invalid: no such host"), "dns"},
		{errors.New("EOF"), "eof"},
		{errors.New("something odd"), "unknown"},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
