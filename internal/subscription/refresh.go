package subscription

import (
	"context"
	"time"

	"subrank/internal/logger"
)

// tickGranularity bounds how long a running worker takes to observe a stop
// request, regardless of the configured refresh interval.
const tickGranularity = time.Second

// maxSleep caps the pause between interval re-evaluations.
const maxSleep = 60 * time.Second

// StartAutoUpdate moves the refresh worker from Stopped to Running. It is
// idempotent: a second call while running logs and returns, so there is at
// most one live worker per subscription.
func (s *Subscription) StartAutoUpdate() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Log.Infof("Auto-update already running for subscription %s", s.Name)
		return
	}
	s.autoUpdate = true
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	interval := s.UpdateInterval
	s.mu.Unlock()

	go s.refreshLoop(stop, done, interval)
	logger.Log.Infof("Started auto-update for subscription %s (interval: %s)", s.Name, interval)
}

// StopAutoUpdate signals the worker to stop and waits for it to exit. The
// worker observes the flag at one-second granularity, so shutdown latency
// is bounded by roughly one second.
func (s *Subscription) StopAutoUpdate() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.autoUpdate = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	logger.Log.Infof("Stopped auto-update for subscription %s", s.Name)
}

// AutoUpdating reports whether the refresh worker is running.
func (s *Subscription) AutoUpdating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// refreshLoop is the worker body. A failed fetch is swallowed and logged;
// auto-refresh must never crash the process or propagate errors.
func (s *Subscription) refreshLoop(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		s.mu.Lock()
		last := time.Unix(s.lastUpdateTime, 0)
		s.mu.Unlock()

		if s.clock.Now().Sub(last) >= interval {
			if _, err := s.Fetch(context.Background(), 30*time.Second); err != nil {
				logger.Log.Errorf("Auto-update failed for %s: %v", s.Name, err)
			}
		}

		// Sleep in one-second increments, re-checking the stop flag each
		// tick, for min(interval, 60s).
		sleep := interval
		if sleep > maxSleep {
			sleep = maxSleep
		}
		ticks := int(sleep / tickGranularity)
		if ticks < 1 {
			ticks = 1
		}
		for i := 0; i < ticks; i++ {
			select {
			case <-stop:
				return
			case <-s.clock.After(tickGranularity):
			}
		}
	}
}
