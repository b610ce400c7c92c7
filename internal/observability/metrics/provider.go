// Package metrics provides Prometheus metric collectors for the monitoring
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics contains Prometheus metrics for imagery provider operations
type ProviderMetrics struct {
	registry *prometheus.Registry

	searchesTotal       *prometheus.CounterVec
	searchDuration      prometheus.Histogram
	fetchesTotal        *prometheus.CounterVec
	fetchDuration       prometheus.Histogram
	imageSizeBytes      prometheus.Histogram
	tokenRefreshesTotal prometheus.Counter
}

// NewProviderMetrics creates and registers new provider metrics
func NewProviderMetrics(registry *prometheus.Registry) (*ProviderMetrics, error) {
	m := &ProviderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ProviderMetrics) initMetrics() {
	m.searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_catalog_searches_total",
			Help: "Total number of catalog search operations",
		},
		[]string{"status"}, // status: success, error
	)

	m.searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_catalog_search_duration_seconds",
			Help:    "Time taken by catalog searches including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	m.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_image_fetches_total",
			Help: "Total number of image fetch operations",
		},
		[]string{"status"}, // status: success, error, invalid
	)

	m.fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_image_fetch_duration_seconds",
			Help:    "Time taken by image fetches including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	m.imageSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_image_size_bytes",
			Help:    "Size of fetched image payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	m.tokenRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provider_token_refreshes_total",
			Help: "Total number of OAuth2 token exchanges performed",
		},
	)
}

// Describe implements the Collector interface
func (m *ProviderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.searchesTotal.Describe(ch)
	m.searchDuration.Describe(ch)
	m.fetchesTotal.Describe(ch)
	m.fetchDuration.Describe(ch)
	m.imageSizeBytes.Describe(ch)
	m.tokenRefreshesTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *ProviderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.searchesTotal.Collect(ch)
	m.searchDuration.Collect(ch)
	m.fetchesTotal.Collect(ch)
	m.fetchDuration.Collect(ch)
	m.imageSizeBytes.Collect(ch)
	m.tokenRefreshesTotal.Collect(ch)
}

// RecordSearch increments the catalog search counter
func (m *ProviderMetrics) RecordSearch(status string) {
	m.searchesTotal.WithLabelValues(status).Inc()
}

// RecordSearchDuration records the duration of a catalog search
func (m *ProviderMetrics) RecordSearchDuration(seconds float64) {
	m.searchDuration.Observe(seconds)
}

// RecordFetch increments the image fetch counter
func (m *ProviderMetrics) RecordFetch(status string) {
	m.fetchesTotal.WithLabelValues(status).Inc()
}

// RecordFetchDuration records the duration of an image fetch
func (m *ProviderMetrics) RecordFetchDuration(seconds float64) {
	m.fetchDuration.Observe(seconds)
}

// ObserveImageSize records the size of a fetched image payload
func (m *ProviderMetrics) ObserveImageSize(bytes float64) {
	m.imageSizeBytes.Observe(bytes)
}

// RecordTokenRefresh increments the token exchange counter
func (m *ProviderMetrics) RecordTokenRefresh() {
	m.tokenRefreshesTotal.Inc()
}
