// Package observe provides the observability primitives for emojiquiz:
// OpenTelemetry metrics, tracing helpers, a trace-aware logger, and HTTP
// middleware.
//
// Metrics go through the OpenTelemetry Metrics API and are exposed for
// scraping by the Prometheus exporter installed in [InitProvider]. Tests
// should build their own [Metrics] with [NewMetrics] over a ManualReader
// instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all emojiquiz metrics.
const meterName = "github.com/MrWong99/emojiquiz"

// Metrics holds every instrument the application records. All fields are
// safe for concurrent use.
type Metrics struct {
	// Evaluations counts finished recognition sessions. Attribute: outcome.
	Evaluations metric.Int64Counter

	// ReactionTime is the time from window open to the first matching
	// transcript, for correct answers.
	ReactionTime metric.Float64Histogram

	// DrainDuration is how long sessions spent draining after the window
	// closed.
	DrainDuration metric.Float64Histogram

	// Points is the per-question score.
	Points metric.Int64Histogram

	// SpeechErrors counts speech source failures. Attributes: source, kind.
	SpeechErrors metric.Int64Counter

	// SourceFailovers counts switches from one speech source to the next.
	// Attributes: from, to.
	SourceFailovers metric.Int64Counter

	// Games counts completed games. Attribute: status (finished, aborted).
	Games metric.Int64Counter

	// ActiveSessions is the number of recognition sessions currently open.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is request latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// windowBuckets covers reaction and drain times, which are bounded by the
// 15s maximum listening window.
var windowBuckets = []float64{0.25, 0.5, 1, 1.5, 2, 3, 4, 5, 7.5, 10, 15}

// pointBuckets matches the possible per-question scores.
var pointBuckets = []float64{0, 10, 11, 12, 14, 15}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Evaluations, err = m.Int64Counter("emojiquiz.evaluations",
		metric.WithDescription("Evaluated answers by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ReactionTime, err = m.Float64Histogram("emojiquiz.reaction_time",
		metric.WithDescription("Time from the start of the listening window to the first matching transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(windowBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DrainDuration, err = m.Float64Histogram("emojiquiz.drain.duration",
		metric.WithDescription("Time spent waiting for in-flight transcripts after the window closed."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(windowBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Points, err = m.Int64Histogram("emojiquiz.points",
		metric.WithDescription("Points awarded per question."),
		metric.WithExplicitBucketBoundaries(pointBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechErrors, err = m.Int64Counter("emojiquiz.speech.errors",
		metric.WithDescription("Speech source errors by source and kind."),
	); err != nil {
		return nil, err
	}
	if met.SourceFailovers, err = m.Int64Counter("emojiquiz.speech.failovers",
		metric.WithDescription("Failovers between speech sources."),
	); err != nil {
		return nil, err
	}
	if met.Games, err = m.Int64Counter("emojiquiz.games",
		metric.WithDescription("Games played by final status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("emojiquiz.active_sessions",
		metric.WithDescription("Recognition sessions currently listening or draining."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("emojiquiz.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] built from
// [otel.GetMeterProvider] on first use. It panics if instrument creation
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

// RecordEvaluation records one evaluated answer: the outcome counter, the
// points histogram and, when reaction is non-nil, the reaction time.
func (m *Metrics) RecordEvaluation(ctx context.Context, outcome string, points int, reaction *time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Evaluations.Add(ctx, 1, attrs)
	m.Points.Record(ctx, int64(points), attrs)
	if reaction != nil {
		m.ReactionTime.Record(ctx, reaction.Seconds())
	}
}

// RecordSpeechError counts a speech source failure. kind is one of
// "unavailable", "permission", "transport" or "stop".
func (m *Metrics) RecordSpeechError(ctx context.Context, source, kind string) {
	m.SpeechErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("kind", kind),
	))
}

// RecordFailover counts a switch between speech sources.
func (m *Metrics) RecordFailover(ctx context.Context, from, to string) {
	m.SourceFailovers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordGame counts a finished or aborted game.
func (m *Metrics) RecordGame(ctx context.Context, status string) {
	m.Games.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
