package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Round outcomes
const (
	OutcomeSuccess        = "success"
	OutcomePartialFailure = "partial_failure"
	OutcomeRejected       = "rejected"
	OutcomeTransportError = "transport_error"
)

// Recorder is what the ingestion client reports to
type Recorder interface {
	RecordEnqueued(ctx context.Context, kind string)
	RecordRound(ctx context.Context, outcome string, items int, duration time.Duration)
	RecordResolved(ctx context.Context, status string, n int)
	RecordPending(ctx context.Context, n int)
}

// Noop discards everything
type Noop struct{}

func (Noop) RecordEnqueued(context.Context, string) {}
func (Noop) RecordRound(context.Context, string, int, time.Duration) {}
func (Noop) RecordResolved(context.Context, string, int) {}
func (Noop) RecordPending(context.Context, int) {}

// Metrics holds the ingestion metrics:
// - Traffic: events enqueued, rounds submitted, HTTP requests served
// - Latency: round and request durations
// - Errors: rejected and failed rounds, dropped items
// - Saturation: events waiting in the queue
type Metrics struct {
	meter metric.Meter

	// Client side
	EventsEnqueued metric.Int64Counter
	RoundDuration  metric.Float64Histogram
	RoundsTotal    metric.Int64Counter
	RoundItems     metric.Int64Histogram
	ItemsResolved  metric.Int64Counter
	QueuePending   metric.Int64Gauge

	// Reference server side
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter
}

// NewMetrics creates all metrics on a Prometheus exporter bound to reg.
// A nil reg uses a fresh registry. The returned handler serves that registry.
func NewMetrics(ctx context.Context, reg *prometheus.Registry) (*Metrics, http.Handler, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("finetunedb")
	m := &Metrics{meter: meter}

	m.EventsEnqueued, err = meter.Int64Counter(
		"finetunedb_events_enqueued_total",
		metric.WithDescription("Total number of events accepted into the ingestion queue"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RoundDuration, err = meter.Float64Histogram(
		"finetunedb_round_duration_seconds",
		metric.WithDescription("Bulk submission round latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RoundsTotal, err = meter.Int64Counter(
		"finetunedb_rounds_total",
		metric.WithDescription("Total number of bulk submission rounds by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RoundItems, err = meter.Int64Histogram(
		"finetunedb_round_items",
		metric.WithDescription("Number of events per bulk submission"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 20, 50, 100, 500),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ItemsResolved, err = meter.Int64Counter(
		"finetunedb_items_resolved_total",
		metric.WithDescription("Total number of events resolved by the server, by status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueuePending, err = meter.Int64Gauge(
		"finetunedb_queue_pending",
		metric.WithDescription("Current number of pending events (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"finetunedb_http_request_duration_seconds",
		metric.WithDescription("Ingestion API request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"finetunedb_http_requests_total",
		metric.WithDescription("Total number of ingestion API requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"finetunedb_http_errors_total",
		metric.WithDescription("Total number of ingestion API errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// RecordEnqueued records an event accepted into the queue.
func (m *Metrics) RecordEnqueued(ctx context.Context, kind string) {
	m.EventsEnqueued.Add(ctx, 1, metric.WithAttributes(kindAttr(kind)))
}

// RecordRound records a finished bulk submission round.
func (m *Metrics) RecordRound(ctx context.Context, outcome string, items int, duration time.Duration) {
	attrs := metric.WithAttributes(outcomeAttr(outcome))
	m.RoundsTotal.Add(ctx, 1, attrs)
	m.RoundDuration.Record(ctx, duration.Seconds(), attrs)
	m.RoundItems.Record(ctx, int64(items))
}

// RecordResolved records events that left the queue with the given status.
func (m *Metrics) RecordResolved(ctx context.Context, status string, n int) {
	if n <= 0 {
		return
	}
	m.ItemsResolved.Add(ctx, int64(n), metric.WithAttributes(itemStatusAttr(status)))
}

// RecordPending records the current queue depth.
func (m *Metrics) RecordPending(ctx context.Context, n int) {
	m.QueuePending.Record(ctx, int64(n))
}

// RecordHTTPRequest records a request served by the reference server.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		httpStatusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}
var _ Recorder = (*Metrics)(nil)
