// Package observe provides application-wide observability primitives for
// VerseCue: OpenTelemetry metrics, tracing, trace-aware logging, Sentry error
// reporting and the HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping via the Prometheus exporter set up by [InitProvider]. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VerseCue metrics.
const meterName = "github.com/MrWong99/versecue"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// DetectionCandidates counts candidates handed to the review queue. Use
	// with attribute.String("origin", ...) and attribute.String("wave", ...).
	DetectionCandidates metric.Int64Counter

	// DetectionSuppressed counts candidates dropped by the cooldown.
	DetectionSuppressed metric.Int64Counter

	// LLMDetectDuration tracks probabilistic detection latency.
	LLMDetectDuration metric.Float64Histogram

	// QueueTransitions counts review-queue transitions. Use with
	// attribute.String("state", ...).
	QueueTransitions metric.Int64Counter

	// IdentifyDuration tracks end-to-end song identification latency. Use
	// with attribute.String("outcome", ...).
	IdentifyDuration metric.Float64Histogram

	// StrategyDuration tracks per-strategy song search latency. Use with
	// attribute.String("strategy", ...).
	StrategyDuration metric.Float64Histogram

	// StrategyResults counts matches returned per strategy.
	StrategyResults metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes
	// provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// STTRestarts counts supervised speech-stream restarts.
	STTRestarts metric.Int64Counter

	// DisplayClients tracks connected display websocket clients.
	DisplayClients metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, from sub-second
// detection calls to multi-second identification round trips.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8}

// instruments creates instruments on one meter and keeps the first error, so
// NewMetrics reads as a list instead of a ladder of checks.
type instruments struct {
	m   metric.Meter
	err error
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.m.Int64Counter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	c, err := b.m.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instruments) latency(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.m.Float64Histogram(name, opts...)
	b.keep(name, err)
	return h
}

func (b *instruments) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("observe: instrument %s: %w", name, err)
	}
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{m: mp.Meter(meterName)}
	met := &Metrics{
		DetectionCandidates: b.counter("versecue.detect.candidates", "Detection candidates queued by origin and wave."),
		DetectionSuppressed: b.counter("versecue.detect.suppressed", "Detection candidates dropped by the repeat cooldown."),
		LLMDetectDuration:   b.latency("versecue.detect.llm.duration", "Latency of language-model reference detection.", latencyBuckets...),
		QueueTransitions:    b.counter("versecue.queue.transitions", "Review queue transitions by target state."),
		IdentifyDuration:    b.latency("versecue.worship.identify.duration", "Latency of song identification by outcome.", latencyBuckets...),
		StrategyDuration:    b.latency("versecue.worship.strategy.duration", "Latency of a single song search strategy.", latencyBuckets...),
		StrategyResults:     b.counter("versecue.worship.strategy.results", "Song matches returned by strategy."),
		ProviderRequests:    b.counter("versecue.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:      b.counter("versecue.provider.errors", "Provider errors by provider and kind."),
		STTRestarts:         b.counter("versecue.stt.restarts", "Supervised speech-to-text stream restarts."),
		DisplayClients:      b.gauge("versecue.display.clients", "Connected display clients."),
		HTTPRequestDuration: b.latency("versecue.http.request.duration", "HTTP request latency by route and status."),
	}
	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCandidates adds n queued candidates of the given origin and wave.
func (m *Metrics) RecordCandidates(ctx context.Context, origin, wave string, n int) {
	if n == 0 {
		return
	}
	m.DetectionCandidates.Add(ctx, int64(n), metric.WithAttributes(Attr("origin", origin), Attr("wave", wave)))
}

// RecordTransition records a review-queue transition into state.
func (m *Metrics) RecordTransition(ctx context.Context, state string) {
	m.QueueTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordIdentify records one identification attempt.
func (m *Metrics) RecordIdentify(ctx context.Context, outcome string, d time.Duration) {
	m.IdentifyDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStrategy records one song search strategy run.
func (m *Metrics) RecordStrategy(ctx context.Context, strategy string, d time.Duration, results int) {
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.StrategyDuration.Record(ctx, d.Seconds(), attrs)
	m.StrategyResults.Add(ctx, int64(results), attrs)
}

// RecordProviderCall counts one provider call. A non-nil err also counts
// as a provider error.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

// RecordProviderError counts a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}
