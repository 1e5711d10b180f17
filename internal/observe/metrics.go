// Package observe provides application-wide observability primitives for
// the engine: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/mohsenil85/imbolc-engine"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TransportSendDuration tracks the time spent writing a datagram to the
	// synthesis server's control socket.
	TransportSendDuration metric.Float64Histogram

	// BundleDispatchDuration tracks the time spent building and sending a
	// bundle from the playback ticker or automation engine.
	BundleDispatchDuration metric.Float64Histogram

	// CompileDuration tracks synth-def compile time.
	CompileDuration metric.Float64Histogram

	// --- Counters ---

	// VoicesSpawned counts voice allocations. Use with attribute:
	//   attribute.String("instrument", ...)
	VoicesSpawned metric.Int64Counter

	// VoicesStolen counts voice steals triggered by exceeding the
	// per-instrument voice cap.
	VoicesStolen metric.Int64Counter

	// VoicesReleased counts voice releases (natural note-off or steal).
	VoicesReleased metric.Int64Counter

	// AutomationPointsRecorded counts automation points written after
	// passing the thinning filter.
	AutomationPointsRecorded metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts backend/transport errors by kind. Use with
	// attribute:
	//   attribute.String("kind", ...)
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveVoices tracks the number of currently gated voices.
	ActiveVoices metric.Int64UpDownCounter

	// ActiveNodes tracks the number of live server-side nodes the registry
	// is tracking.
	ActiveNodes metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), tuned for
// sub-frame control-path latencies rather than network round trips.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TransportSendDuration, err = m.Float64Histogram("imbolc.transport.send.duration",
		metric.WithDescription("Latency of a single datagram write to the synthesis server."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BundleDispatchDuration, err = m.Float64Histogram("imbolc.bundle.dispatch.duration",
		metric.WithDescription("Latency of building and sending one control bundle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompileDuration, err = m.Float64Histogram("imbolc.compile.duration",
		metric.WithDescription("Latency of a synth-def compile invocation."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.VoicesSpawned, err = m.Int64Counter("imbolc.voices.spawned",
		metric.WithDescription("Total voices spawned, by instrument."),
	); err != nil {
		return nil, err
	}
	if met.VoicesStolen, err = m.Int64Counter("imbolc.voices.stolen",
		metric.WithDescription("Total voices stolen to stay within the per-instrument cap."),
	); err != nil {
		return nil, err
	}
	if met.VoicesReleased, err = m.Int64Counter("imbolc.voices.released",
		metric.WithDescription("Total voice releases, natural or stolen."),
	); err != nil {
		return nil, err
	}
	if met.AutomationPointsRecorded, err = m.Int64Counter("imbolc.automation.points_recorded",
		metric.WithDescription("Total automation points written after the thinning filter."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("imbolc.backend.errors",
		metric.WithDescription("Total backend/transport errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveVoices, err = m.Int64UpDownCounter("imbolc.active_voices",
		metric.WithDescription("Number of currently gated voices."),
	); err != nil {
		return nil, err
	}
	if met.ActiveNodes, err = m.Int64UpDownCounter("imbolc.active_nodes",
		metric.WithDescription("Number of live nodes tracked by the registry."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("imbolc.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordVoiceSpawned is a convenience method that records a voice spawn
// counter increment with the standard attribute set.
func (m *Metrics) RecordVoiceSpawned(ctx context.Context, instrument string) {
	m.VoicesSpawned.Add(ctx, 1, metric.WithAttributes(attribute.String("instrument", instrument)))
}

// RecordVoiceStolen is a convenience method that records a voice steal
// counter increment.
func (m *Metrics) RecordVoiceStolen(ctx context.Context, instrument string) {
	m.VoicesStolen.Add(ctx, 1, metric.WithAttributes(attribute.String("instrument", instrument)))
}

// RecordVoiceReleased is a convenience method that records a voice release
// counter increment.
func (m *Metrics) RecordVoiceReleased(ctx context.Context, instrument string) {
	m.VoicesReleased.Add(ctx, 1, metric.WithAttributes(attribute.String("instrument", instrument)))
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, kind string) {
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
