// Package store owns the set of subscriptions: persistence, cross-feed
// aggregation, and filtering. The map is mutated only through the store;
// readers get consistent snapshots.
package store

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"subrank/internal/endpoint"
	"subrank/internal/logger"
	"subrank/internal/storage"
	"subrank/internal/subscription"
)

// Store maps subscription identity hashes to live subscriptions.
type Store struct {
	mu   sync.RWMutex
	subs map[string]*subscription.Subscription

	dir          *storage.Dir
	client       *http.Client
	userAgent    string
	fetchTimeout time.Duration
	clock        subscription.Clock
}

// Options tune the store.
type Options struct {
	UserAgent    string
	FetchTimeout time.Duration
	Client       *http.Client
	Clock        subscription.Clock
}

// Open loads every persisted subscription from dir and restarts the
// auto-refresh worker for any subscription flagged for it. Corrupt records
// are skipped, never aborting the rest.
func Open(dirPath string, opts Options) (*Store, error) {
	dir, err := storage.Open(dirPath)
	if err != nil {
		return nil, err
	}

	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}

	st := &Store{
		subs:         make(map[string]*subscription.Subscription),
		dir:          dir,
		client:       opts.Client,
		userAgent:    opts.UserAgent,
		fetchTimeout: opts.FetchTimeout,
		clock:        opts.Clock,
	}

	records, err := dir.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		sub, err := subscription.FromRecord(rec, st.subOptions())
		if err != nil {
			logger.Log.Errorf("Skipping persisted subscription %s: %v", rec.ID, err)
			continue
		}
		sub.SetUpdateHook(st.persist)
		st.subs[sub.ID()] = sub
		if sub.AutoUpdate() {
			sub.StartAutoUpdate()
		}
	}
	logger.Log.Infof("Loaded %d subscriptions", len(st.subs))
	return st, nil
}

func (s *Store) subOptions() subscription.Options {
	return subscription.Options{
		UserAgent: s.userAgent,
		Client:    s.client,
		Clock:     s.clock,
	}
}

// persist is the update hook: saves a subscription after state changes.
func (s *Store) persist(sub *subscription.Subscription) {
	if err := s.dir.Save(sub.Snapshot()); err != nil {
		logger.Log.Errorf("Failed to save subscription %s: %v", sub.Name, err)
	}
}

// AddOptions describe a subscription to add.
type AddOptions struct {
	URL            string
	Name           string
	Priority       int
	Tags           []string
	AutoUpdate     bool
	UpdateInterval time.Duration
	FetchNow       bool
}

// Add creates, optionally fetches, optionally schedules, and persists a new
// subscription. A duplicate URL is rejected before construction. An initial
// fetch failure is logged but does not abort the add, so the caller can
// retry later.
func (s *Store) Add(ctx context.Context, opts AddOptions) (*subscription.Subscription, error) {
	s.mu.Lock()
	for _, existing := range s.subs {
		if existing.URL() == opts.URL {
			s.mu.Unlock()
			return nil, &subscription.ValidationError{Msg: "subscription URL already exists: " + opts.URL}
		}
	}
	s.mu.Unlock()

	subOpts := s.subOptions()
	subOpts.Name = opts.Name
	subOpts.Priority = opts.Priority
	subOpts.Tags = opts.Tags
	subOpts.AutoUpdate = opts.AutoUpdate
	subOpts.UpdateInterval = opts.UpdateInterval

	sub, err := subscription.New(opts.URL, subOpts)
	if err != nil {
		return nil, err
	}
	sub.SetUpdateHook(s.persist)

	if opts.FetchNow {
		if _, err := sub.Fetch(ctx, s.fetchTimeout); err != nil {
			logger.Log.Warnf("Initial fetch failed, keeping subscription anyway: %v", err)
		}
	}
	if opts.AutoUpdate {
		sub.StartAutoUpdate()
	}

	// Re-check under the insert lock: a concurrent Add with the same URL
	// may have won the race since the pre-construction check.
	s.mu.Lock()
	for _, existing := range s.subs {
		if existing.URL() == opts.URL {
			s.mu.Unlock()
			sub.StopAutoUpdate()
			return nil, &subscription.ValidationError{Msg: "subscription URL already exists: " + opts.URL}
		}
	}
	s.subs[sub.ID()] = sub
	s.mu.Unlock()

	s.persist(sub)
	logger.Log.Infof("Added subscription: %s (%s)", sub.Name, sub.URL())
	return sub, nil
}

// RemoveByID stops any running worker and deletes the subscription from
// memory and disk. Returns false when the id is unknown; "not found" is an
// expected caller outcome, not an error.
func (s *Store) RemoveByID(id string) bool {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()

	if !ok {
		logger.Log.Warnf("Subscription not found: %s", id)
		return false
	}

	sub.StopAutoUpdate()
	if err := s.dir.Delete(id); err != nil {
		logger.Log.Errorf("Failed to delete subscription file %s: %v", id, err)
	}
	logger.Log.Infof("Removed subscription: %s", sub.Name)
	return true
}

// Get returns the subscription with the given id, or nil.
func (s *Store) Get(id string) *subscription.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs[id]
}

// List returns a snapshot of all subscriptions, ordered by priority
// (descending) then name.
func (s *Store) List() []*subscription.Subscription {
	s.mu.RLock()
	out := make([]*subscription.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// UpdateByID fetches one subscription and persists the outcome.
func (s *Store) UpdateByID(ctx context.Context, id string) error {
	sub := s.Get(id)
	if sub == nil {
		return &subscription.ValidationError{Msg: "subscription not found: " + id}
	}
	_, err := sub.Update(ctx, s.fetchTimeout)
	s.persist(sub)
	return err
}

// UpdateAll fetches every subscription; one feed's failure never affects
// the others. The returned map holds the per-subscription error, nil on
// success.
func (s *Store) UpdateAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, sub := range s.List() {
		_, err := sub.Update(ctx, s.fetchTimeout)
		s.persist(sub)
		results[sub.ID()] = err
	}
	return results
}

// AllEndpoints aggregates the endpoint lists of all subscriptions.
func (s *Store) AllEndpoints() []*endpoint.Record {
	var all []*endpoint.Record
	for _, sub := range s.List() {
		all = append(all, sub.Configs()...)
	}
	return all
}

// Persist saves one subscription's current state.
func (s *Store) Persist(sub *subscription.Subscription) {
	s.persist(sub)
}

// Close stops every running refresh worker.
func (s *Store) Close() {
	for _, sub := range s.List() {
		sub.StopAutoUpdate()
	}
}
