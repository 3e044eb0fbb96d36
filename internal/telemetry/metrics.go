// Package telemetry implements the SDK's own observability surface: the
// impression and event pipelines, unique-keys tracking, and the
// Prometheus-backed runtime counters/histograms. These are exposed for
// scraping only; no /metrics/usage payload is pushed over HTTP.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this SDK instance exposes.
// Registered in a private [prometheus.Registry], the same convention the
// rest of this module's ambient stack follows, so embedding applications
// can mount it under their own path without clashing with their own
// default-registry metrics.
type Metrics struct {
	Registry *prometheus.Registry

	EvaluationsTotal      *prometheus.CounterVec
	EvaluationLatency     *prometheus.HistogramVec
	ImpressionsQueued     prometheus.Counter
	ImpressionsDropped    prometheus.Counter
	ImpressionsDeduped    prometheus.Counter
	ImpressionListenerPanics prometheus.Counter
	EventsQueued          prometheus.Counter
	EventsDropped         prometheus.Counter
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestLatency    *prometheus.HistogramVec
	StreamingStatus       prometheus.Gauge
	LastSynchronization   *prometheus.GaugeVec
	FlagStoreSize         prometheus.Gauge
	SegmentStoreSize      prometheus.Gauge
}

// New creates and registers this SDK instance's metrics in a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitkit_evaluations_total",
			Help: "Total number of flag evaluations, by label.",
		}, []string{"label"}),

		EvaluationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "splitkit_evaluation_latency_seconds",
			Help:    "Flag evaluation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		ImpressionsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitkit_impressions_queued_total",
			Help: "Total number of impressions queued for reporting.",
		}),

		ImpressionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitkit_impressions_dropped_total",
			Help: "Total number of impressions dropped due to a full queue.",
		}),

		ImpressionsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitkit_impressions_deduped_total",
			Help: "Total number of impressions suppressed by OPTIMIZED-mode deduplication.",
		}),

		ImpressionListenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitkit_impression_listener_panics_total",
			Help: "Total number of panics recovered from the user-supplied impression listener.",
		}),

		EventsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitkit_events_queued_total",
			Help: "Total number of custom events queued for reporting.",
		}),

		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitkit_events_dropped_total",
			Help: "Total number of custom events dropped due to a full queue.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitkit_http_requests_total",
			Help: "Total number of outbound HTTP requests to the Split backend.",
		}, []string{"endpoint", "status"}),

		HTTPRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "splitkit_http_request_latency_seconds",
			Help:    "Outbound HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		StreamingStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitkit_streaming_up",
			Help: "1 if the streaming connection is up, 0 otherwise.",
		}),

		LastSynchronization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "splitkit_last_synchronization_timestamp",
			Help: "Unix timestamp of the last successful sync, by resource.",
		}, []string{"resource"}),

		FlagStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitkit_flags_in_storage",
			Help: "Number of flags currently in storage.",
		}),

		SegmentStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitkit_segments_in_storage",
			Help: "Number of segments currently in storage.",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationLatency,
		m.ImpressionsQueued,
		m.ImpressionsDropped,
		m.ImpressionsDeduped,
		m.ImpressionListenerPanics,
		m.EventsQueued,
		m.EventsDropped,
		m.HTTPRequestsTotal,
		m.HTTPRequestLatency,
		m.StreamingStatus,
		m.LastSynchronization,
		m.FlagStoreSize,
		m.SegmentStoreSize,
	)

	return m
}

// RecordEvaluation records one evaluation's label and latency.
func (m *Metrics) RecordEvaluation(method, label string, latency time.Duration) {
	m.EvaluationsTotal.WithLabelValues(label).Inc()
	m.EvaluationLatency.WithLabelValues(method).Observe(latency.Seconds())
}

// RecordHTTP records one outbound HTTP call's endpoint, status, and
// latency.
func (m *Metrics) RecordHTTP(endpoint, status string, latency time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.HTTPRequestLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// SetStreamingUp reports the current streaming connection health.
func (m *Metrics) SetStreamingUp(up bool) {
	if up {
		m.StreamingStatus.Set(1)
		return
	}
	m.StreamingStatus.Set(0)
}

// RecordSync stamps the last-synchronization gauge for a resource (flags,
// or a specific segment name) with the current time.
func (m *Metrics) RecordSync(resource string, at time.Time) {
	m.LastSynchronization.WithLabelValues(resource).Set(float64(at.Unix()))
}

// Handler exposes this instance's private registry for host-side
// scraping, in addition to the periodic HTTP push the reporter performs.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
