package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawl.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	PagesTotal          *prometheus.CounterVec
	RecordsTotal        *prometheus.CounterVec
	FailureRecordsTotal *prometheus.CounterVec
	FieldMissesTotal    *prometheus.CounterVec
	WritesTotal         *prometheus.CounterVec
	RetriesTotal        prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_requests_total",
			Help: "Total page fetches issued, by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_request_duration_seconds",
			Help:    "Page fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_pages_total",
			Help: "Pages processed, by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_records_total",
			Help: "Records extracted, by kind.",
		},
		[]string{"kind"},
	)
	failureRecords := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_failure_records_total",
			Help: "All-null records substituted for failed extractions, by kind.",
		},
		[]string{"kind"},
	)
	fieldMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_field_misses_total",
			Help: "Listing fields that extracted as null, by field.",
		},
		[]string{"field"},
	)
	writes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_writes_total",
			Help: "Batch persistence attempts, by result.",
		},
		[]string{"result"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_retries_total",
			Help: "Total number of fetch retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, records, failureRecords, fieldMisses, writes, retries, errorsTotal)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		PagesTotal:          pages,
		RecordsTotal:        records,
		FailureRecordsTotal: failureRecords,
		FieldMissesTotal:    fieldMisses,
		WritesTotal:         writes,
		RetriesTotal:        retries,
		ErrorsTotal:         errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage counts a processed page.
func (m *Metrics) IncPage(stage, outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(stage, outcome).Inc()
}

// AddRecords counts extracted records.
func (m *Metrics) AddRecords(kind string, n int) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(kind).Add(float64(n))
}

// AddFailureRecords counts substituted failure records.
func (m *Metrics) AddFailureRecords(kind string, n int) {
	if m == nil {
		return
	}
	m.FailureRecordsTotal.WithLabelValues(kind).Add(float64(n))
}

// IncFieldMiss counts a null listing field.
func (m *Metrics) IncFieldMiss(field string) {
	if m == nil {
		return
	}
	m.FieldMissesTotal.WithLabelValues(field).Inc()
}

// IncWrite counts a persistence outcome: written, skipped or failed.
func (m *Metrics) IncWrite(result string) {
	if m == nil {
		return
	}
	m.WritesTotal.WithLabelValues(result).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
