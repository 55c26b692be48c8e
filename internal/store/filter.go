package store

import (
	"fmt"
	"regexp"
	"strings"

	"subrank/internal/endpoint"
	"subrank/internal/logger"
	"subrank/internal/subscription"
)

// FilterOptions select endpoints across the whole store. All criteria
// compose by intersection. Nil pointers mean "not requested".
type FilterOptions struct {
	// Protocols restricts to these protocol names (case-insensitive).
	Protocols []string
	// MinSuccessRate must lie in [0,1]; admits only tested endpoints.
	MinSuccessRate *float64
	// MaxLatency is in milliseconds, non-negative; admits only tested
	// endpoints with a positive last latency.
	MaxLatency *int
	// SubscriptionTags scope the search to subscriptions carrying any of
	// these tags.
	SubscriptionTags []string
	// ConfigTags require every listed tag on the endpoint.
	ConfigTags []string
	// NameRegex matches against the endpoint display name.
	NameRegex string
}

// FilterResult carries the matches plus the diagnostic distinguishing
// "no matches" from "nothing has been tested yet".
type FilterResult struct {
	Endpoints []*endpoint.Record
	// NothingTested is set when a latency or success-rate filter was
	// requested but zero endpoints across the store have ever been tested.
	NothingTested bool
}

// Filter applies the criteria in a fixed order: subscription-tag scope,
// protocol, success rate, latency, config tag, name regex. Parameter
// validation is strict; violations fail immediately instead of silently
// ignoring the filter.
func (s *Store) Filter(opts FilterOptions) (*FilterResult, error) {
	if opts.MinSuccessRate != nil && (*opts.MinSuccessRate < 0 || *opts.MinSuccessRate > 1) {
		return nil, &subscription.ValidationError{
			Msg: fmt.Sprintf("min success rate must be in [0,1], got %v", *opts.MinSuccessRate),
		}
	}
	if opts.MaxLatency != nil && *opts.MaxLatency < 0 {
		return nil, &subscription.ValidationError{
			Msg: fmt.Sprintf("max latency must be non-negative, got %d", *opts.MaxLatency),
		}
	}
	var nameRe *regexp.Regexp
	if opts.NameRegex != "" {
		re, err := regexp.Compile(opts.NameRegex)
		if err != nil {
			return nil, &subscription.ValidationError{
				Msg: fmt.Sprintf("invalid name regex %q: %v", opts.NameRegex, err),
			}
		}
		nameRe = re
	}

	// 1. Subscription-tag scope.
	var candidates []*endpoint.Record
	for _, sub := range s.List() {
		if len(opts.SubscriptionTags) > 0 && !anyTagMatch(sub.Tags, opts.SubscriptionTags) {
			continue
		}
		candidates = append(candidates, sub.Configs()...)
	}

	result := &FilterResult{}

	statFiltered := opts.MinSuccessRate != nil || opts.MaxLatency != nil
	if statFiltered && !anyTested(candidates) {
		result.NothingTested = true
		logger.Log.Warnf("Latency/success-rate filter requested but no endpoint has been tested yet; run a probe first")
	}

	protoSet := make(map[endpoint.Protocol]bool, len(opts.Protocols))
	for _, p := range opts.Protocols {
		protoSet[endpoint.Protocol(strings.ToLower(p))] = true
	}

	for _, ep := range candidates {
		// 2. Protocol.
		if len(protoSet) > 0 && !protoSet[ep.Protocol] {
			continue
		}
		// 3. Success rate: only endpoints with at least one test qualify.
		if opts.MinSuccessRate != nil {
			if !ep.Tested() || ep.SuccessRate() < *opts.MinSuccessRate {
				continue
			}
		}
		// 4. Latency: only a positive recorded latency qualifies.
		if opts.MaxLatency != nil {
			if ep.LastLatency <= 0 || ep.LastLatency > *opts.MaxLatency {
				continue
			}
		}
		// 5. Config tags: all requested tags must be present.
		if !allTagsPresent(ep, opts.ConfigTags) {
			continue
		}
		// 6. Name regex.
		if nameRe != nil && !nameRe.MatchString(ep.Name) {
			continue
		}
		result.Endpoints = append(result.Endpoints, ep)
	}

	return result, nil
}

func anyTested(eps []*endpoint.Record) bool {
	for _, ep := range eps {
		if ep.Tested() {
			return true
		}
	}
	return false
}

func anyTagMatch(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func allTagsPresent(ep *endpoint.Record, want []string) bool {
	for _, w := range want {
		if !ep.HasTag(w) {
			return false
		}
	}
	return true
}
