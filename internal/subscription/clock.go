package subscription

import "time"

// Clock abstracts time for the refresh worker so tests can drive a virtual
// clock instead of sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the default wall clock.
var SystemClock Clock = systemClock{}
