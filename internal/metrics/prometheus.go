package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the Hexpert voice relay
type Metrics struct {
	// Chunk ingestion metrics
	ChunksReceived  prometheus.Counter
	ChunksDropped   prometheus.Counter // dropped because a round was in flight
	ChunksDiscarded prometheus.Counter // empty or malformed chunks

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter

	// Pipeline metrics
	Flushes          prometheus.Counter
	RoundsSucceeded  prometheus.Counter
	RoundsFailed     prometheus.Counter
	BlankTranscripts prometheus.Counter
	RoundDuration    prometheus.Histogram

	// Responder metrics
	ResponderFallbacks prometheus.Counter

	// Speech synthesis metrics
	SynthesisFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with the given
// registerer. Passing a fresh registry keeps tests isolated from each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Chunk ingestion metrics
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_chunks_received_total",
			Help: "Total number of audio chunks received from clients",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_chunks_dropped_busy_total",
			Help: "Total number of chunks dropped while a transcription round was in flight",
		}),
		ChunksDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_chunks_discarded_total",
			Help: "Total number of empty or malformed chunks discarded",
		}),

		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hexpert_active_sessions",
			Help: "Current number of connected client sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),

		// Pipeline metrics
		Flushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_buffer_flushes_total",
			Help: "Total number of buffer flushes dispatched for transcription",
		}),
		RoundsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_rounds_succeeded_total",
			Help: "Total number of transcription rounds that completed successfully",
		}),
		RoundsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_rounds_failed_total",
			Help: "Total number of transcription rounds that failed",
		}),
		BlankTranscripts: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_blank_transcripts_total",
			Help: "Total number of rounds ended early due to an empty transcript",
		}),
		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hexpert_round_duration_seconds",
			Help:    "Duration of complete transcription rounds in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		// Responder metrics
		ResponderFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_responder_fallbacks_total",
			Help: "Total number of answers produced by the keyword fallback path",
		}),

		// Speech synthesis metrics
		SynthesisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hexpert_synthesis_failures_total",
			Help: "Total number of failed speech synthesis calls (logged only, never surfaced)",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hexpert_http_requests_total",
			Help: "Total number of HTTP requests by method, endpoint and status",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hexpert_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hexpert_http_errors_total",
			Help: "Total number of HTTP error responses by method, endpoint and error type",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records an HTTP error response
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
