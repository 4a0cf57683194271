package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/htmx-go-timer"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Timing metrics
	TimingsStartedTotal metric.Int64Counter
	TimingsStoppedTotal metric.Int64Counter
	TimingConflicts     metric.Int64Counter

	// SSE metrics
	ActiveClients          metric.Int64UpDownCounter
	EventsPublishedTotal   metric.Int64Counter
	ClientsDroppedTotal    metric.Int64Counter
	ReporterTickErrorTotal metric.Int64Counter

	// Asset metrics
	AssetBuildDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TimingsStartedTotal, _ = meter.Int64Counter(
		"timer.timings.started.total",
		metric.WithDescription("Total number of timings started"),
		metric.WithUnit("{timing}"),
	)

	m.TimingsStoppedTotal, _ = meter.Int64Counter(
		"timer.timings.stopped.total",
		metric.WithDescription("Total number of timings stopped"),
		metric.WithUnit("{timing}"),
	)

	m.TimingConflicts, _ = meter.Int64Counter(
		"timer.timings.conflicts.total",
		metric.WithDescription("Start or stop requests rejected because of the current timing state"),
		metric.WithUnit("{request}"),
	)

	m.ActiveClients, _ = meter.Int64UpDownCounter(
		"timer.sse.clients.active",
		metric.WithDescription("Number of connected event stream clients"),
		metric.WithUnit("{client}"),
	)

	m.EventsPublishedTotal, _ = meter.Int64Counter(
		"timer.sse.events.published.total",
		metric.WithDescription("Total number of events published to the broker"),
		metric.WithUnit("{event}"),
	)

	m.ClientsDroppedTotal, _ = meter.Int64Counter(
		"timer.sse.clients.dropped.total",
		metric.WithDescription("Total number of clients dropped because their buffer was full"),
		metric.WithUnit("{client}"),
	)

	m.ReporterTickErrorTotal, _ = meter.Int64Counter(
		"timer.reporter.errors.total",
		metric.WithDescription("Total number of reporter ticks that failed to read the store"),
		metric.WithUnit("{error}"),
	)

	m.AssetBuildDuration, _ = meter.Float64Histogram(
		"timer.assets.build.duration",
		metric.WithDescription("Duration of bundle builds"),
		metric.WithUnit("ms"),
	)

	return m
}
