// Package metrics defines the minimal backend interface the pipeline
// reports through. The core depends only on Backend; the Datadog and
// Prometheus implementations live in subpackages and are selected at
// startup.
package metrics

// Labels tag a metric point, e.g. {"format": "csv", "outcome": "ok"}.
type Labels map[string]string

// Backend receives metric points. Implementations must be safe for
// concurrent use; request handlers call them directly.
type Backend interface {
	// IncCounter adds delta to a monotonically increasing counter.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records one sample of a distribution.
	ObserveHistogram(name string, value float64, labels Labels)
	// Close flushes anything buffered and releases resources. Call once
	// at process shutdown.
	Close() error
}

// Nop discards everything. It keeps call sites unconditional.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
