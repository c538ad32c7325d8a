// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// The backend buffers points in memory, flushes them on a ticker (default
// once per minute), and flushes one final time on Close. Short-lived
// one-shot runs therefore still ship their metrics, and long-running
// servers show a time series instead of a single spike at exit.
//
// Concurrency model:
//   - request handlers call IncCounter/ObserveHistogram at any time,
//   - Flush snapshots and resets the buffers under a mutex, then submits
//     out of lock,
//   - the flush loop calls Flush periodically; Close stops the loop.
//
// Buffers are reset even when submission fails: losing a window of metric
// points is preferable to blocking uploads behind a slow intake.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"lognorm/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls backend configuration.
type Options struct {
	// Tags are extra Datadog tags (e.g. []string{"env:prod"}). The backend
	// always adds "service:lognorm" and an env tag from $ENV or $DD_ENV.
	Tags []string

	// FlushEvery controls the submission interval. <= 0 means 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests
	// use them to avoid real clocks, tickers and network submission.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter submitter
}

// submitter is the minimal slice of the Datadog SDK the backend needs.
// Depending on this interface instead of *datadogV2.MetricsApi lets tests
// capture payloads without HTTP.
type submitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, o ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// counterKey identifies one buffered counter series.
type counterKey struct {
	name string
	tags string // canonical sorted "k:v,k:v" form
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api submitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[counterKey]float64
	samples  map[counterKey][]float64
}

// NewBackend constructs the backend and starts its flush loop.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "service:lognorm")
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	tickerFn := opts.newTicker
	if tickerFn == nil {
		tickerFn = time.NewTicker
	}
	sub := opts.submitter
	if sub == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		sub = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        sub,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  tickerFn,
		counters:   make(map[counterKey]float64),
		samples:    make(map[counterKey][]float64),
	}
	go b.loop()
	return b, nil
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := counterKey{name: name, tags: canonicalTags(labels)}
	b.mu.Lock()
	b.counters[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend. Samples are buffered and
// reduced to p50/p95/max gauges at flush time; Datadog has no native
// client-side histogram in the intake v2 API.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k := counterKey{name: name, tags: canonicalTags(labels)}
	b.mu.Lock()
	b.samples[k] = append(b.samples[k], value)
	b.mu.Unlock()
}

// canonicalTags renders labels as a deterministic "k:v,k:v" string so that
// equal label sets always buffer into the same series.
func canonicalTags(labels metrics.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+":"+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

type snapshot struct {
	counters map[counterKey]float64
	samples  map[counterKey][]float64
}

// snapshotAndReset detaches the current buffers under the lock.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := snapshot{counters: b.counters, samples: b.samples}
	b.counters = make(map[counterKey]float64)
	b.samples = make(map[counterKey][]float64)
	return s
}

// Flush submits buffered metrics and resets the buffers. Returns nil when
// there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if len(snap.counters) == 0 && len(snap.samples) == 0 {
		return nil
	}
	series := b.buildSeries(snap, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series})
	return err
}

// buildSeries is pure (no locks, clocks or network), which keeps the
// naming and tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	mk := func(metric string, typ datadogV2.MetricIntakeType, value float64, tagstr string) datadogV2.MetricSeries {
		tags := b.baseTags
		if tagstr != "" {
			tags = append(append([]string{}, b.baseTags...), strings.Split(tagstr, ",")...)
		}
		return datadogV2.MetricSeries{
			Metric: dotted(metric),
			Type:   typ.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: tags,
		}
	}

	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+3*len(s.samples))
	for k, v := range s.counters {
		if v == 0 {
			continue
		}
		series = append(series, mk(k.name, datadogV2.METRICINTAKETYPE_COUNT, v, k.tags))
	}
	for k, samples := range s.samples {
		if len(samples) == 0 {
			continue
		}
		sort.Float64s(samples)
		p := func(q float64) float64 {
			i := int(q * float64(len(samples)-1))
			return samples[i]
		}
		series = append(series,
			mk(k.name+".p50", datadogV2.METRICINTAKETYPE_GAUGE, p(0.50), k.tags),
			mk(k.name+".p95", datadogV2.METRICINTAKETYPE_GAUGE, p(0.95), k.tags),
			mk(k.name+".max", datadogV2.METRICINTAKETYPE_GAUGE, samples[len(samples)-1], k.tags),
		)
	}
	return series
}

// dotted converts the pipeline's prometheus-style names to Datadog's
// dotted convention: "lognorm_uploads_total" -> "lognorm.uploads.total".
func dotted(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}

var _ metrics.Backend = (*Backend)(nil)
