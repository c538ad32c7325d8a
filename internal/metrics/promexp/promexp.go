// Package promexp implements a Prometheus backend for the internal/metrics
// package. Counters and histograms are registered lazily on first use and
// served from the registry exposed by Handler, so the serve command can
// mount it next to the application routes.
package promexp

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lognorm/internal/metrics"
)

// Backend implements metrics.Backend on a private Prometheus registry.
type Backend struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

func NewBackend() *Backend {
	return &Backend{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler serves the registry in the Prometheus text format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{})
}

// IncCounter implements metrics.Backend.
//
// Prometheus vecs are keyed by a fixed label-name set, so the first call
// for a metric name pins its label names; later calls with a different set
// are dropped rather than allowed to panic the handler.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	names, values := splitLabels(labels)

	b.mu.Lock()
	vec, ok := b.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, names)
		if err := b.reg.Register(vec); err != nil {
			b.mu.Unlock()
			return
		}
		b.counters[name] = vec
	}
	b.mu.Unlock()

	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}
	c.Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	names, values := splitLabels(labels)

	b.mu.Lock()
	vec, ok := b.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Buckets: prometheus.DefBuckets,
		}, names)
		if err := b.reg.Register(vec); err != nil {
			b.mu.Unlock()
			return
		}
		b.histograms[name] = vec
	}
	b.mu.Unlock()

	h, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}
	h.Observe(value)
}

// Close implements metrics.Backend. Prometheus is pull-based; nothing to
// flush.
func (b *Backend) Close() error { return nil }

func splitLabels(labels metrics.Labels) (names, values []string) {
	if len(labels) == 0 {
		return nil, nil
	}
	names = make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	values = make([]string, len(names))
	for i, k := range names {
		values[i] = labels[k]
	}
	return names, values
}

var _ metrics.Backend = (*Backend)(nil)
