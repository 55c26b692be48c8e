package endpoint

import "time"

// Tested reports whether this endpoint has accumulated at least one probe.
func (r *Record) Tested() bool {
	return r.SuccessCount+r.FailureCount > 0
}

// SuccessRate returns successes over total tests, 0 when never tested.
func (r *Record) SuccessRate() float64 {
	total := r.SuccessCount + r.FailureCount
	if total == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(total)
}

// RecordResult folds one probe outcome into the rolling statistics.
// Counters only ever grow; latency of a failed probe is recorded as -1.
func (r *Record) RecordResult(success bool, latencyMS int, at time.Time) {
	r.LastTestTime = at.Unix()
	if success {
		r.SuccessCount++
		r.LastLatency = latencyMS
	} else {
		r.FailureCount++
		r.LastLatency = -1
	}
}

// CopyStatsFrom carries test history from a previous incarnation of the
// same descriptor string onto this record.
func (r *Record) CopyStatsFrom(prev *Record) {
	r.LastTestTime = prev.LastTestTime
	r.LastLatency = prev.LastLatency
	r.SuccessCount = prev.SuccessCount
	r.FailureCount = prev.FailureCount
	if len(prev.Tags) > 0 {
		r.Tags = append([]string(nil), prev.Tags...)
	}
}

// HasTag reports whether the endpoint carries the given free-form tag.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag unless it is already present.
func (r *Record) AddTag(tag string) {
	if tag == "" || r.HasTag(tag) {
		return
	}
	r.Tags = append(r.Tags, tag)
}
