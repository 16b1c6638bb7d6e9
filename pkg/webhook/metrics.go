package webhook

import "time"

// Metrics defines the interface for tracking webhook reconciliation.
type Metrics interface {
	// RecordEvent records one delivery and its disposition
	// ("processed", "duplicate", "no_handler", "failed").
	RecordEvent(provider, eventType, status string)

	// RecordProcessingDuration records how long one delivery took
	// end to end.
	RecordProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordSweep records a redelivery sweep and how many records it
	// re-drove.
	RecordSweep(redriven, failed int)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEvent(provider, eventType, status string) {}
func (n *NoopMetrics) RecordProcessingDuration(provider, eventType string, duration time.Duration) {
}
func (n *NoopMetrics) RecordSweep(redriven, failed int) {}
