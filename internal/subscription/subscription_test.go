package subscription

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const feedBody = "vless://user@host:443#NodeA\nvmess://abc@host2:8443#NodeB\ngarbage-line"

func serveBody(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustNew(t *testing.T, url string, opts Options) *Subscription {
	t.Helper()
	s, err := New(url, opts)
	if err != nil {
		t.Fatalf("New(%q): %v", url, err)
	}
	return s
}

func TestNewRejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"", "ftp://host/feed", "file:///etc/passwd", "not a url", "http://"} {
		_, err := New(raw, Options{})
		if err == nil {
			t.Errorf("New(%q) accepted", raw)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("New(%q) error type %T, want *ValidationError", raw, err)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	s := mustNew(t, "https://provider.example/feed", Options{})
	if s.Name != "provider.example" {
		t.Errorf("Name = %q, want host", s.Name)
	}
	if s.UpdateInterval != DefaultInterval {
		t.Errorf("UpdateInterval = %v", s.UpdateInterval)
	}
	if !s.Enabled {
		t.Error("new subscription should be enabled")
	}
	if s.ID() != HashURL("https://provider.example/feed") {
		t.Error("id is not the URL hash")
	}
}

func TestFetchBase64Payload(t *testing.T) {
	srv := serveBody(t, base64.StdEncoding.EncodeToString([]byte(feedBody)))
	s := mustNew(t, srv.URL, Options{Client: srv.Client()})

	configs, err := s.Fetch(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d endpoints, want 2 (garbage line dropped)", len(configs))
	}
	if configs[0].Name != "NodeA" || configs[1].Name != "NodeB" {
		t.Errorf("names = %q, %q", configs[0].Name, configs[1].Name)
	}
	for _, c := range configs {
		if c.LastLatency != -1 {
			t.Errorf("%s: LastLatency = %d, want -1", c.Name, c.LastLatency)
		}
	}
	total, ok, _ := s.UpdateCounters()
	if !s.LastFetchSuccess() || ok != 1 || total != 1 {
		t.Errorf("bookkeeping: success=%v ok=%d total=%d", s.LastFetchSuccess(), ok, total)
	}
	if s.LastUpdateTime() == 0 {
		t.Error("update time not set")
	}
}

func TestFetchPlaintextPayload(t *testing.T) {
	srv := serveBody(t, feedBody)
	s := mustNew(t, srv.URL, Options{Client: srv.Client()})

	configs, err := s.Fetch(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d endpoints, want 2", len(configs))
	}
}

func TestFetchNoValidEndpoints(t *testing.T) {
	srv := serveBody(t, "not a config")
	s := mustNew(t, srv.URL, Options{Client: srv.Client()})

	_, err := s.Fetch(context.Background(), 5*time.Second)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v (%T), want *ParseError", err, err)
	}
	total, _, failed := s.UpdateCounters()
	if s.LastFetchSuccess() || failed != 1 || total != 1 {
		t.Errorf("bookkeeping: success=%v failed=%d total=%d", s.LastFetchSuccess(), failed, total)
	}
	if s.LastErrorMessage() == "" {
		t.Error("fetch error not recorded")
	}
}

func TestFetchHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := mustNew(t, srv.URL, Options{Client: srv.Client()})

	_, err := s.Fetch(context.Background(), 5*time.Second)
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v (%T), want *FetchError", err, err)
	}
	if total, _, failed := s.UpdateCounters(); failed != 1 || total != 1 {
		t.Errorf("failed=%d total=%d", failed, total)
	}
}

func TestFetchFailureKeepsOldConfigs(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()
	s := mustNew(t, srv.URL, Options{Client: srv.Client()})

	if _, err := s.Fetch(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	fail = true
	if _, err := s.Fetch(context.Background(), 5*time.Second); err == nil {
		t.Fatal("second fetch should fail")
	}
	if len(s.Configs()) != 2 {
		t.Errorf("old endpoint list lost on failed refresh: %d", len(s.Configs()))
	}
}

func TestFetchMergesStats(t *testing.T) {
	srv := serveBody(t, feedBody)
	s := mustNew(t, srv.URL, Options{Client: srv.Client()})

	configs, err := s.Fetch(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	configs[0].RecordResult(true, 150, time.Unix(42, 0))

	refreshed, err := s.Fetch(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("re-fetch: %v", err)
	}
	if refreshed[0].SuccessCount != 1 || refreshed[0].LastLatency != 150 {
		t.Errorf("stats not carried across refresh: %+v", refreshed[0])
	}
	if refreshed[1].SuccessCount != 0 {
		t.Errorf("stats leaked onto wrong endpoint: %+v", refreshed[1])
	}
}

func TestFetchSendsHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()
	s := mustNew(t, srv.URL, Options{Client: srv.Client(), UserAgent: "custom-agent/2"})

	if _, err := s.Fetch(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != "custom-agent/2" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestDecodeBody(t *testing.T) {
	// UTF-8 with BOM.
	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("vless://u@h:443#x")...)
	if got := decodeBody(bom); got != "vless://u@h:443#x" {
		t.Errorf("BOM body = %q", got)
	}

	// Invalid UTF-8 falls back to Latin-1: 0xE9 is é.
	latin := []byte{'n', 0xE9, 't'}
	if got := decodeBody(latin); got != "nét" {
		t.Errorf("Latin-1 body = %q", got)
	}
}

func TestParsePayloadHeuristic(t *testing.T) {
	// Multi-line plaintext is never base64-decoded.
	lines := parsePayload("vless://a\r\nvless://b\n\n")
	if len(lines) != 2 || lines[0] != "vless://a" || lines[1] != "vless://b" {
		t.Errorf("lines = %v", lines)
	}

	// A short token stays plaintext even if it would decode.
	lines = parsePayload("dmxlc3M=")
	if len(lines) != 1 || lines[0] != "dmxlc3M=" {
		t.Errorf("short token decoded: %v", lines)
	}

	// Base64-looking but invalid input degrades to plaintext.
	lines = parsePayload("this-is-not-base64-content!!")
	if len(lines) != 1 || lines[0] != "this-is-not-base64-content!!" {
		t.Errorf("invalid base64 not kept verbatim: %v", lines)
	}
}

// Exercised under the race detector: counters and fetch outcome must stay
// readable while a refresh mutates them on another goroutine.
func TestBookkeepingReadableDuringFetch(t *testing.T) {
	srv := serveBody(t, feedBody)
	s := mustNew(t, srv.URL, Options{Client: srv.Client()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			s.Fetch(context.Background(), 5*time.Second)
		}
	}()

	for {
		select {
		case <-done:
			if total, ok, _ := s.UpdateCounters(); total != 20 || ok != 20 {
				t.Errorf("counters after 20 fetches: total=%d ok=%d", total, ok)
			}
			return
		default:
			s.UpdateCounters()
			s.LastFetchSuccess()
			s.LastErrorMessage()
			s.LastUpdateTime()
			s.AutoUpdate()
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	srv := serveBody(t, feedBody)
	s := mustNew(t, srv.URL, Options{
		Name:           "prod feed",
		Priority:       7,
		Tags:           []string{"paid"},
		AutoUpdate:     true,
		UpdateInterval: 2 * time.Hour,
		Client:         srv.Client(),
	})
	if _, err := s.Fetch(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	rec := s.Snapshot()
	if rec.UpdateInterval != int64((2 * time.Hour).Seconds()) {
		t.Errorf("persisted interval = %d seconds", rec.UpdateInterval)
	}

	restored, err := FromRecord(rec, Options{})
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if restored.ID() != s.ID() || restored.URL() != s.URL() {
		t.Error("identity not preserved")
	}
	if restored.Name != "prod feed" || restored.Priority != 7 || !restored.AutoUpdate() {
		t.Errorf("metadata not preserved: name=%q priority=%d", restored.Name, restored.Priority)
	}
	if restored.UpdateInterval != 2*time.Hour {
		t.Errorf("interval = %v", restored.UpdateInterval)
	}
	if len(restored.Configs()) != 2 {
		t.Errorf("endpoints = %d", len(restored.Configs()))
	}
	if total, ok, _ := restored.UpdateCounters(); total != 1 || ok != 1 {
		t.Errorf("counters: %d/%d", ok, total)
	}
}
