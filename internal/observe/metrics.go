// Package observe provides application-wide observability primitives for
// Hearsay: OpenTelemetry metrics and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hearsay metrics.
const meterName = "github.com/hearsay-ai/hearsay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks utterance finalization latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks per-sentence synthesis latency.
	TTSDuration metric.Float64Histogram

	// AgentDuration tracks agent delivery round-trip latency.
	AgentDuration metric.Float64Histogram

	// --- Counters ---

	// FramesDropped counts capture frames evicted because the pipeline
	// fell behind.
	FramesDropped metric.Int64Counter

	// WakeDetections counts accepted wake-word detections.
	WakeDetections metric.Int64Counter

	// Interruptions counts user barge-ins during playback.
	Interruptions metric.Int64Counter

	// Turns counts completed interaction turns. Use with attribute:
	//   attribute.String("outcome", "ok"|"empty"|"error"|"interrupted")
	Turns metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// TalkState reports the controller's current state as an ordinal.
	TalkState metric.Int64Gauge

	// WakeCPUEstimate reports the wake scorer's rolling CPU estimate in
	// percent of one core.
	WakeCPUEstimate metric.Float64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("hearsay.stt.duration",
		metric.WithDescription("Latency of utterance finalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("hearsay.tts.duration",
		metric.WithDescription("Latency of speech synthesis per sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentDuration, err = m.Float64Histogram("hearsay.agent.duration",
		metric.WithDescription("Latency of agent delivery round trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesDropped, err = m.Int64Counter("hearsay.audio.frames_dropped",
		metric.WithDescription("Total capture frames dropped because the pipeline fell behind."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("hearsay.wake.detections",
		metric.WithDescription("Total accepted wake-word detections."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("hearsay.talk.interruptions",
		metric.WithDescription("Total user interruptions during playback."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("hearsay.talk.turns",
		metric.WithDescription("Total interaction turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("hearsay.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.TalkState, err = m.Int64Gauge("hearsay.talk.state",
		metric.WithDescription("Current talk controller state ordinal."),
	); err != nil {
		return nil, err
	}
	if met.WakeCPUEstimate, err = m.Float64Gauge("hearsay.wake.cpu_estimate",
		metric.WithDescription("Rolling wake scorer CPU estimate in percent of one core."),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordTurn is a convenience method that records a completed turn with its
// outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
