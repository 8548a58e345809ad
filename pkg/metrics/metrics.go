// Package metrics exposes pipeline counters and gauges in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/screenrec/pkg/pipeline"
)

// Metrics holds Prometheus counters and gauges for one recording process.
type Metrics struct {
	registry          *prometheus.Registry
	framesSubmitted   prometheus.Counter
	framesDropped     prometheus.Counter
	framesRejected    prometheus.Counter
	chunksTotal       *prometheus.CounterVec
	chunkBytes        prometheus.Histogram
	qualityMultiplier prometheus.Gauge
	qualityDeviation  prometheus.Gauge
	adjustmentsTotal  *prometheus.CounterVec
	persistRetries    *prometheus.CounterVec
	persistFailures   *prometheus.CounterVec
	storageTotal      prometheus.Gauge
	storageProjected  prometheus.Gauge
	storageBudget     prometheus.Gauge
	storageAlert      prometheus.Gauge
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenrec_frames_submitted_total",
			Help: "Total number of frames accepted by the compression engine",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenrec_frames_dropped_total",
			Help: "Total number of frames dropped because the encoder queue stayed full",
		}),
		framesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenrec_frames_rejected_total",
			Help: "Total number of frames rejected because no segment was open",
		}),
		chunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_chunks_total",
			Help: "Total number of chunks by final status",
		}, []string{"status"}),
		chunkBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screenrec_chunk_bytes",
			Help:    "Size of finalized chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10),
		}),
		qualityMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenrec_quality_multiplier",
			Help: "Quality multiplier applied to the current segment",
		}),
		qualityDeviation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenrec_quality_deviation",
			Help: "Relative deviation of the rolling chunk size from the target at the last decision",
		}),
		adjustmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_quality_adjustments_total",
			Help: "Total number of quality decisions by action",
		}, []string{"action"}),
		persistRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_persist_retries_total",
			Help: "Total number of retried metadata writes",
		}, []string{"op"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrec_persist_failures_total",
			Help: "Total number of metadata writes that failed after retrying",
		}, []string{"op"}),
		storageTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenrec_storage_bytes",
			Help: "Bytes of finalized chunks inside the retention window",
		}),
		storageProjected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenrec_storage_projected_bytes",
			Help: "Projected usage over one retention window",
		}),
		storageBudget: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenrec_storage_budget_bytes",
			Help: "Storage budget over one retention window",
		}),
		storageAlert: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenrec_storage_alert",
			Help: "1 when projected usage exceeds the budget by more than the alert margin",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenrec_http_requests_total",
			Help: "Total number of HTTP requests received by the status server",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenrec_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.framesSubmitted,
		m.framesDropped,
		m.framesRejected,
		m.chunksTotal,
		m.chunkBytes,
		m.qualityMultiplier,
		m.qualityDeviation,
		m.adjustmentsTotal,
		m.persistRetries,
		m.persistFailures,
		m.storageTotal,
		m.storageProjected,
		m.storageBudget,
		m.storageAlert,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncFramesSubmitted increments the accepted frame counter.
func (m *Metrics) IncFramesSubmitted() {
	m.framesSubmitted.Inc()
}

// IncFramesDropped increments the dropped frame counter.
func (m *Metrics) IncFramesDropped() {
	m.framesDropped.Inc()
}

// IncFramesRejected increments the rejected frame counter.
func (m *Metrics) IncFramesRejected() {
	m.framesRejected.Inc()
}

// ObserveChunk counts a chunk by status and records the size of finalized ones.
func (m *Metrics) ObserveChunk(c pipeline.CompressedChunk) {
	m.chunksTotal.WithLabelValues(string(c.Status)).Inc()
	if c.Status == pipeline.ChunkFinalized {
		m.chunkBytes.Observe(float64(c.Bytes))
	}
}

// ObserveAdjustment records one quality decision.
func (m *Metrics) ObserveAdjustment(r pipeline.QualityAdjustmentRecord) {
	m.adjustmentsTotal.WithLabelValues(string(r.Action)).Inc()
	m.qualityDeviation.Set(r.Deviation)
	m.qualityMultiplier.Set(r.NewFactor)
}

// SetQualityMultiplier sets the current multiplier gauge.
func (m *Metrics) SetQualityMultiplier(v float64) {
	m.qualityMultiplier.Set(v)
}

// IncPersistRetry increments the retried write counter for op.
func (m *Metrics) IncPersistRetry(op string) {
	m.persistRetries.WithLabelValues(op).Inc()
}

// IncPersistFailure increments the failed write counter for op.
func (m *Metrics) IncPersistFailure(op string) {
	m.persistFailures.WithLabelValues(op).Inc()
}

// SetStorage copies a storage snapshot into the storage gauges.
func (m *Metrics) SetStorage(s pipeline.StorageMetricsSnapshot) {
	m.storageTotal.Set(float64(s.TotalBytes))
	m.storageProjected.Set(s.ProjectedBytes)
	m.storageBudget.Set(float64(s.BudgetBytes))
	if s.Alert {
		m.storageAlert.Set(1)
	} else {
		m.storageAlert.Set(0)
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. storage usage).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
