package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ImageCacheMetrics contains Prometheus metrics for the zone image cache
type ImageCacheMetrics struct {
	registry *prometheus.Registry

	upsertsTotal             *prometheus.CounterVec
	freshnessRejectionsTotal prometheus.Counter
	negativeCacheHitsTotal   prometheus.Counter
	artifactWriteErrors      prometheus.Counter
	cachedZonesGauge         prometheus.Gauge
}

// NewImageCacheMetrics creates and registers new image cache metrics
func NewImageCacheMetrics(registry *prometheus.Registry) (*ImageCacheMetrics, error) {
	m := &ImageCacheMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ImageCacheMetrics) initMetrics() {
	m.upsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagecache_upserts_total",
			Help: "Total number of cache upsert attempts",
		},
		[]string{"status"}, // status: success, error
	)

	m.freshnessRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imagecache_freshness_rejections_total",
			Help: "Upserts rejected because the candidate was not fresher than the cached image",
		},
	)

	m.negativeCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imagecache_negative_hits_total",
			Help: "Zone refreshes skipped due to a recent no-imagery result",
		},
	)

	m.artifactWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imagecache_artifact_write_errors_total",
			Help: "Artifact write or swap failures",
		},
	)

	m.cachedZonesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imagecache_cached_zones",
			Help: "Number of zones with a cached image",
		},
	)
}

// Describe implements the Collector interface
func (m *ImageCacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.upsertsTotal.Describe(ch)
	m.freshnessRejectionsTotal.Describe(ch)
	m.negativeCacheHitsTotal.Describe(ch)
	m.artifactWriteErrors.Describe(ch)
	m.cachedZonesGauge.Describe(ch)
}

// Collect implements the Collector interface
func (m *ImageCacheMetrics) Collect(ch chan<- prometheus.Metric) {
	m.upsertsTotal.Collect(ch)
	m.freshnessRejectionsTotal.Collect(ch)
	m.negativeCacheHitsTotal.Collect(ch)
	m.artifactWriteErrors.Collect(ch)
	m.cachedZonesGauge.Collect(ch)
}

// RecordUpsert increments the upsert counter
func (m *ImageCacheMetrics) RecordUpsert(status string) {
	m.upsertsTotal.WithLabelValues(status).Inc()
}

// RecordFreshnessRejection counts a rejected stale candidate
func (m *ImageCacheMetrics) RecordFreshnessRejection() {
	m.freshnessRejectionsTotal.Inc()
}

// RecordNegativeCacheHit counts a skip due to a cached no-imagery result
func (m *ImageCacheMetrics) RecordNegativeCacheHit() {
	m.negativeCacheHitsTotal.Inc()
}

// RecordArtifactWriteError counts an artifact write or swap failure
func (m *ImageCacheMetrics) RecordArtifactWriteError() {
	m.artifactWriteErrors.Inc()
}

// SetCachedZones updates the cached zone gauge
func (m *ImageCacheMetrics) SetCachedZones(count float64) {
	m.cachedZonesGauge.Set(count)
}
