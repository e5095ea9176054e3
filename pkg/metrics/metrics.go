// Package metrics provides Prometheus metrics for freightsync.
//
// All metrics live on a dedicated Registry rather than the global default so
// that tests and embedders get a clean namespace. Handler serves the registry
// together with the Go and process collectors.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	records, err := adapter.FetchViaAPI(ctx, creds, dataType, params)
//	metrics.FetchDuration.WithLabelValues(carrierID, string(dataType)).Observe(timer.Stop().Seconds())
//	metrics.FetchRequests.WithLabelValues(carrierID, string(dataType), metrics.Outcome(err)).Inc()
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the dedicated Prometheus registry for freightsync.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// FetchRequests counts FetchData calls.
	// Labels: carrier, data_type, status (success/failure)
	FetchRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_fetch_requests_total",
			Help: "Total number of carrier data fetches",
		},
		[]string{"carrier", "data_type", "status"},
	)

	// FetchDuration tracks end-to-end fetch latency including retries.
	FetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freightsync_fetch_duration_seconds",
			Help:    "Carrier fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"carrier", "data_type"},
	)

	// FetchRetries counts retry attempts after retryable failures.
	FetchRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_fetch_retries_total",
			Help: "Total number of fetch retries",
		},
		[]string{"carrier"},
	)

	// RateLimitRejections counts calls refused by a connection's limiter.
	RateLimitRejections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_rate_limit_rejections_total",
			Help: "Total number of calls rejected by connection rate limiters",
		},
		[]string{"carrier"},
	)

	// PipelineRecords counts records per pipeline stage outcome.
	// Labels: stage, outcome (passed/dropped/absorbed)
	PipelineRecords = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_pipeline_records_total",
			Help: "Records handled by each pipeline stage",
		},
		[]string{"stage", "outcome"},
	)

	// HealthChecks counts monitor health checks.
	HealthChecks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_health_checks_total",
			Help: "Total number of connection health checks",
		},
		[]string{"carrier", "status"},
	)

	// HealthCheckDuration tracks health check latency.
	HealthCheckDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freightsync_health_check_duration_seconds",
			Help:    "Connection health check duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"carrier"},
	)

	// Alerts counts raised alerts by severity.
	Alerts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"severity"},
	)

	// ActiveConnections tracks connections that are not deactivated.
	ActiveConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "freightsync_active_connections",
			Help: "Number of active carrier connections",
		},
	)

	// CarrierHTTPRequests counts outbound carrier HTTP calls.
	// Labels: host, code (HTTP status or "error")
	CarrierHTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_carrier_http_requests_total",
			Help: "Outbound HTTP requests to carrier endpoints",
		},
		[]string{"host", "code"},
	)

	// CarrierHTTPDuration tracks outbound carrier HTTP latency.
	CarrierHTTPDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freightsync_carrier_http_duration_seconds",
			Help:    "Outbound carrier HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	// SinkPublished counts downstream publications.
	// Labels: sink (kafka/webhook), kind (records/alert), status
	SinkPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_sink_published_total",
			Help: "Messages published to downstream sinks",
		},
		[]string{"sink", "kind", "status"},
	)

	// APIRequests counts inbound API requests.
	APIRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightsync_api_requests_total",
			Help: "Inbound API requests",
		},
		[]string{"method", "route", "status"},
	)
)

var regOnce sync.Once

// Handler returns an HTTP handler exposing Registry, with the Go and process
// collectors registered on first call.
func Handler() http.Handler {
	regOnce.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Outcome maps an error to the status label value.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Timer measures an operation's duration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
