package ratelimit

import "time"

// Metrics defines the interface for tracking rate limit decisions.
type Metrics interface {
	// RecordCheck records one rate limit decision and its duration.
	RecordCheck(tenantID, rateType string, strategy Strategy, allowed bool, duration time.Duration)

	// RecordFailOpen records a check that was admitted because the
	// backing store was unavailable.
	RecordFailOpen(strategy Strategy)

	// RecordReset records an administrative limit reset.
	RecordReset(tenantID, rateType string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordCheck(tenantID, rateType string, strategy Strategy, allowed bool, duration time.Duration) {
}
func (n *NoopMetrics) RecordFailOpen(strategy Strategy)       {}
func (n *NoopMetrics) RecordReset(tenantID, rateType string) {}
