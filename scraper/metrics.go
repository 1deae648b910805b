package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the collector and its stores.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RecordsCollected  prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	DatesTotal        *prometheus.CounterVec
	StoreAppendsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xwlb_requests_total",
			Help: "Total HTTP requests issued, by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xwlb_request_duration_seconds",
			Help:    "HTTP request latency for page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xwlb_records_collected_total",
			Help: "Records extracted from day-pages before cleanup.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xwlb_retries_total",
			Help: "Total number of fetch retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xwlb_errors_total",
			Help: "Failed fetch attempts by type.",
		},
		[]string{"error_type"},
	)
	dates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xwlb_dates_total",
			Help: "Dates processed, by whether the day yielded records.",
		},
		[]string{"result"},
	)
	appends := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xwlb_store_appends_total",
			Help: "Store guard decisions by dataset and outcome.",
		},
		[]string{"dataset", "outcome"},
	)

	registry.MustRegister(requests, requestDuration, records, retries, errorsTotal, dates, appends)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RecordsCollected:  records,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		DatesTotal:        dates,
		StoreAppendsTotal: appends,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddRecords adds n to the collected records counter.
func (m *Metrics) AddRecords(n int) {
	if m == nil {
		return
	}
	m.RecordsCollected.Add(float64(n))
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

// IncDate records one processed date.
func (m *Metrics) IncDate(hasData bool) {
	if m == nil {
		return
	}
	result := "empty"
	if hasData {
		result = "data"
	}
	m.DatesTotal.WithLabelValues(result).Inc()
}

// IncAppend records one store guard outcome: appended, skipped or failed.
func (m *Metrics) IncAppend(dataset, outcome string) {
	if m == nil {
		return
	}
	m.StoreAppendsTotal.WithLabelValues(dataset, outcome).Inc()
}
