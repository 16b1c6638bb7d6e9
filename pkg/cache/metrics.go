package cache

// Metrics defines the interface for tracking cache effectiveness.
type Metrics interface {
	// RecordHit records a cache hit for the given namespace.
	RecordHit(namespace string)

	// RecordMiss records a cache miss for the given namespace.
	RecordMiss(namespace string)

	// RecordDegraded records an operation that degraded to miss behavior
	// because the backing store failed.
	RecordDegraded(op string)

	// RecordClear records a bulk clear and how many keys it removed.
	RecordClear(scope string, keys int)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordHit(namespace string)       {}
func (n *NoopMetrics) RecordMiss(namespace string)      {}
func (n *NoopMetrics) RecordDegraded(op string)         {}
func (n *NoopMetrics) RecordClear(scope string, keys int) {}
