// Package subscription owns one remote feed of proxy endpoint descriptors:
// fetching it, decoding and parsing the payload, carrying per-endpoint test
// history across re-fetches, and refreshing itself in the background.
package subscription

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"subrank/internal/endpoint"
	"subrank/internal/logger"
	"subrank/internal/storage"
)

// DefaultInterval is the auto-refresh interval when none is configured.
const DefaultInterval = 24 * time.Hour

// minBase64Len is the shortest body the whole-payload base64 heuristic
// will attempt to decode. Shorter whitespace-free plaintext stays plaintext.
const minBase64Len = 16

// Subscription is one remote URL publishing endpoint descriptors.
// The URL is immutable after creation; identity is a content hash of it and
// survives renames.
type Subscription struct {
	mu sync.Mutex

	id   string
	url  string
	Name string

	Enabled  bool
	Priority int
	Tags     []string

	UpdateInterval time.Duration

	// Bookkeeping mutated by the refresh worker; read through the
	// accessors below so CLI readers never race a live worker.
	autoUpdate        bool
	lastUpdateTime    int64 // epoch seconds, 0 = never
	lastFetchSuccess  bool
	lastErrorMessage  string
	totalUpdates      int
	successfulUpdates int
	failedUpdates     int

	configs []*endpoint.Record

	client    *http.Client
	userAgent string
	clock     Clock

	// onUpdated is invoked after a successful refresh so the owner can
	// persist the new state. Never called with the mutex held.
	onUpdated func(*Subscription)

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Options tune a new subscription.
type Options struct {
	Name           string
	Priority       int
	Tags           []string
	AutoUpdate     bool
	UpdateInterval time.Duration
	UserAgent      string
	Client         *http.Client
	Clock          Clock
}

// New validates the URL and builds a subscription. Only http and https
// schemes are accepted.
func New(rawURL string, opts Options) (*Subscription, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid subscription URL %q: must use http or https", rawURL)}
	}

	name := opts.Name
	if name == "" {
		name = u.Host
	}
	interval := opts.UpdateInterval
	if interval <= 0 {
		interval = DefaultInterval
	}

	s := &Subscription{
		id:             HashURL(rawURL),
		url:            rawURL,
		Name:           name,
		Enabled:        true,
		Priority:       opts.Priority,
		Tags:           opts.Tags,
		autoUpdate:     opts.AutoUpdate,
		UpdateInterval: interval,
		userAgent:      opts.UserAgent,
		client:         opts.Client,
		clock:          opts.Clock,
	}
	s.fillDefaults()
	return s, nil
}

func (s *Subscription) fillDefaults() {
	if s.client == nil {
		s.client = &http.Client{}
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.userAgent == "" {
		s.userAgent = "subrank/1.0"
	}
	if s.UpdateInterval <= 0 {
		s.UpdateInterval = DefaultInterval
	}
}

// HashURL derives the stable subscription identity from its URL.
func HashURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])
}

// ID returns the identity hash.
func (s *Subscription) ID() string { return s.id }

// URL returns the immutable subscription URL.
func (s *Subscription) URL() string { return s.url }

// AutoUpdate reports whether background refresh is requested for this
// subscription, persisted across restarts.
func (s *Subscription) AutoUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoUpdate
}

// LastUpdateTime returns the epoch seconds of the last successful fetch,
// 0 when never fetched.
func (s *Subscription) LastUpdateTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdateTime
}

// LastFetchSuccess reports the outcome of the most recent fetch.
func (s *Subscription) LastFetchSuccess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFetchSuccess
}

// LastErrorMessage returns the most recent fetch error, empty if none.
func (s *Subscription) LastErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErrorMessage
}

// UpdateCounters returns the cumulative total, successful, and failed
// update counts as one consistent snapshot.
func (s *Subscription) UpdateCounters() (total, successful, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalUpdates, s.successfulUpdates, s.failedUpdates
}

// Configs returns a snapshot of the current endpoint list. The records
// themselves are shared; the slice is a copy.
func (s *Subscription) Configs() []*endpoint.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*endpoint.Record, len(s.configs))
	copy(out, s.configs)
	return out
}

// SetUpdateHook registers a callback run after every successful fetch.
func (s *Subscription) SetUpdateHook(fn func(*Subscription)) {
	s.mu.Lock()
	s.onUpdated = fn
	s.mu.Unlock()
}

// Fetch performs one HTTP GET of the subscription URL, decodes and parses
// the payload, and replaces the endpoint list atomically. Per-endpoint test
// history is merged forward by exact descriptor string match.
func (s *Subscription) Fetch(ctx context.Context, timeout time.Duration) ([]*endpoint.Record, error) {
	s.mu.Lock()
	s.totalUpdates++
	s.mu.Unlock()

	logger.Log.Infof("Fetching subscription %s (%s)", s.Name, s.url)

	body, err := s.download(ctx, timeout)
	if err != nil {
		ferr := &FetchError{URL: s.url, Err: err}
		s.recordFailure(ferr)
		return nil, ferr
	}

	lines := parsePayload(decodeBody(body))

	var fresh []*endpoint.Record
	for _, line := range lines {
		if endpoint.Recognized(line) {
			fresh = append(fresh, endpoint.Parse(line))
		}
	}
	if len(fresh) == 0 {
		perr := &ParseError{URL: s.url, Msg: "no valid endpoint descriptors found"}
		s.recordFailure(perr)
		return nil, perr
	}

	s.mu.Lock()
	prev := make(map[string]*endpoint.Record, len(s.configs))
	for _, c := range s.configs {
		prev[c.ConfigString] = c
	}
	for _, c := range fresh {
		if old, ok := prev[c.ConfigString]; ok {
			c.CopyStatsFrom(old)
		}
	}
	s.configs = fresh
	s.lastUpdateTime = s.clock.Now().Unix()
	s.lastFetchSuccess = true
	s.lastErrorMessage = ""
	s.successfulUpdates++
	hook := s.onUpdated
	s.mu.Unlock()

	logger.Log.Infof("Parsed %d endpoints from subscription %s", len(fresh), s.Name)

	if hook != nil {
		hook(s)
	}
	return fresh, nil
}

// Update is a pure alias of Fetch.
func (s *Subscription) Update(ctx context.Context, timeout time.Duration) ([]*endpoint.Record, error) {
	return s.Fetch(ctx, timeout)
}

func (s *Subscription) recordFailure(err error) {
	s.mu.Lock()
	s.lastFetchSuccess = false
	s.lastErrorMessage = err.Error()
	s.failedUpdates++
	s.mu.Unlock()
	logger.Log.Errorf("Subscription %s update failed: %v", s.Name, err)
}

func (s *Subscription) download(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/plain, text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// decodeBody turns raw bytes into text via UTF-8, UTF-8-with-BOM, then
// Latin-1. The last step accepts any byte sequence, so decoding is total.
func decodeBody(b []byte) string {
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(b) {
		return strings.TrimSpace(string(b))
	}
	// Latin-1: each byte maps to the code point of the same value.
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return strings.TrimSpace(string(runes))
}

// parsePayload applies the whole-body base64 heuristic and splits the
// result into trimmed, non-empty lines. A body with no embedded newline or
// space above a minimum length is assumed base64; if decoding fails the
// original text is treated as plaintext rather than failing.
func parsePayload(text string) []string {
	candidate := text
	if len(text) > minBase64Len && !strings.ContainsAny(text, " \n\r") {
		if dec, err := endpoint.DecodeBase64(text); err == nil {
			candidate = dec
		} else {
			logger.Log.Warnf("Base64 decoding failed, trying direct parsing")
		}
	}

	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(candidate, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Snapshot converts the subscription to its persisted record form.
func (s *Subscription) Snapshot() *storage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs := make([]*endpoint.Record, len(s.configs))
	for i, c := range s.configs {
		cp := *c
		cp.Tags = append([]string(nil), c.Tags...)
		configs[i] = &cp
	}

	return &storage.Record{
		ID:                s.id,
		Name:              s.Name,
		URL:               s.url,
		Enabled:           s.Enabled,
		Priority:          s.Priority,
		Tags:              append([]string(nil), s.Tags...),
		AutoUpdate:        s.autoUpdate,
		UpdateInterval:    int64(s.UpdateInterval / time.Second),
		LastUpdateTime:    s.lastUpdateTime,
		LastFetchSuccess:  s.lastFetchSuccess,
		LastErrorMessage:  s.lastErrorMessage,
		TotalUpdates:      s.totalUpdates,
		SuccessfulUpdates: s.successfulUpdates,
		FailedUpdates:     s.failedUpdates,
		Configs:           configs,
	}
}

// FromRecord rebuilds a subscription from its persisted form. Invalid
// records are rejected so the loader can skip them.
func FromRecord(rec *storage.Record, opts Options) (*Subscription, error) {
	opts.Name = rec.Name
	opts.Priority = rec.Priority
	opts.Tags = rec.Tags
	opts.AutoUpdate = rec.AutoUpdate
	opts.UpdateInterval = time.Duration(rec.UpdateInterval) * time.Second

	s, err := New(rec.URL, opts)
	if err != nil {
		return nil, err
	}
	// Identity is persisted; keep it even if the hash scheme ever changes.
	if rec.ID != "" {
		s.id = rec.ID
	}
	s.Enabled = rec.Enabled
	s.lastUpdateTime = rec.LastUpdateTime
	s.lastFetchSuccess = rec.LastFetchSuccess
	s.lastErrorMessage = rec.LastErrorMessage
	s.totalUpdates = rec.TotalUpdates
	s.successfulUpdates = rec.SuccessfulUpdates
	s.failedUpdates = rec.FailedUpdates
	s.configs = rec.Configs
	return s, nil
}
