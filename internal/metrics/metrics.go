// Package metrics exposes Prometheus instrumentation for credvault.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes.
const (
	UploadStored    = "stored"
	UploadDuplicate = "duplicate"
	UploadRejected  = "rejected"
	UploadFailed    = "failed"
)

// Blob delete outcomes.
const (
	DeleteRemoved  = "removed"
	DeleteBlocked  = "blocked"
	DeleteNotFound = "not_found"
)

// Metrics holds every collector on a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BlobUploads      *prometheus.CounterVec
	BlobUploadBytes  prometheus.Histogram
	BlobDeletes      *prometheus.CounterVec
	BlobGCRemoved    *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	ContractsCreated prometheus.Counter
	ContractOverlaps prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BlobUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credvault_blob_uploads_total",
			Help: "Blob uploads by outcome",
		}, []string{"outcome"}),
		BlobUploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "credvault_blob_upload_bytes",
			Help:    "Size of stored blobs in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		BlobDeletes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credvault_blob_deletes_total",
			Help: "Reference-gated blob deletes by outcome",
		}, []string{"outcome"}),
		BlobGCRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credvault_blob_gc_removed_total",
			Help: "Blob rows and orphan objects removed by garbage collection",
		}, []string{"target"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credvault_decisions_total",
			Help: "Verification decisions by credential kind and resulting state",
		}, []string{"kind", "state"}),
		ContractsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_contracts_created_total",
			Help: "Contracts created",
		}),
		ContractOverlaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_contract_overlaps_total",
			Help: "Contract creations rejected for overlapping an existing contract",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credvault_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status class",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveUpload records one upload outcome.
func (m *Metrics) ObserveUpload(outcome string, sizeBytes int64) {
	if m == nil {
		return
	}
	m.BlobUploads.WithLabelValues(outcome).Inc()
	if outcome == UploadStored {
		m.BlobUploadBytes.Observe(float64(sizeBytes))
	}
}

// ObserveBlobDelete records one reference-gated delete outcome.
func (m *Metrics) ObserveBlobDelete(outcome string) {
	if m == nil {
		return
	}
	m.BlobDeletes.WithLabelValues(outcome).Inc()
}

// AddGCRemoved counts removed rows ("rows") or orphan objects ("objects").
func (m *Metrics) AddGCRemoved(target string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BlobGCRemoved.WithLabelValues(target).Add(float64(n))
}

// ObserveDecision records one verification decision.
func (m *Metrics) ObserveDecision(kind, state string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind, state).Inc()
}

// IncrementContractCreated records a created contract.
func (m *Metrics) IncrementContractCreated() {
	if m == nil {
		return
	}
	m.ContractsCreated.Inc()
}

// IncrementContractOverlap records a contract rejected for overlap.
func (m *Metrics) IncrementContractOverlap() {
	if m == nil {
		return
	}
	m.ContractOverlaps.Inc()
}

// ObserveRequest records the duration of one HTTP request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveRequest(route string, status int, start time.Time) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestDuration.WithLabelValues(route, statusClass(status)).Observe(time.Since(start).Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
