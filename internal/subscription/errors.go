package subscription

import "fmt"

// ValidationError reports bad input parameters. It is surfaced immediately
// and never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// FetchError reports a transport failure reaching a subscription URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch subscription %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports fetched content that yields zero valid endpoints.
// Distinct from FetchError so callers can tell "server unreachable" from
// "server reachable but feed is empty or garbled".
type ParseError struct {
	URL string
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse subscription %s: %s", e.URL, e.Msg)
}
