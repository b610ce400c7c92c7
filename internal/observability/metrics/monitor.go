package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics contains Prometheus metrics for the scheduler
type MonitorMetrics struct {
	registry *prometheus.Registry

	cyclesTotal      *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	zoneResultsTotal *prometheus.CounterVec
	zonesMonitored   prometheus.Gauge
	zonesDeferred    prometheus.Counter
}

// NewMonitorMetrics creates and registers new scheduler metrics
func NewMonitorMetrics(registry *prometheus.Registry) (*MonitorMetrics, error) {
	m := &MonitorMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MonitorMetrics) initMetrics() {
	m.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_cycles_total",
			Help: "Total number of refresh cycles run",
		},
		[]string{"kind"}, // kind: priority, full
	)

	m.cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_cycle_duration_seconds",
			Help:    "Wall-clock duration of refresh cycles",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"kind"},
	)

	m.zoneResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_zone_results_total",
			Help: "Per-zone refresh outcomes",
		},
		[]string{"status"}, // status: success, skipped, error
	)

	m.zonesMonitored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_zones",
			Help: "Number of provisioned zones",
		},
	)

	m.zonesDeferred = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_zones_deferred_total",
			Help: "Zones deferred to the next cycle by the soft deadline",
		},
	)
}

// Describe implements the Collector interface
func (m *MonitorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.cyclesTotal.Describe(ch)
	m.cycleDuration.Describe(ch)
	m.zoneResultsTotal.Describe(ch)
	m.zonesMonitored.Describe(ch)
	m.zonesDeferred.Describe(ch)
}

// Collect implements the Collector interface
func (m *MonitorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.cyclesTotal.Collect(ch)
	m.cycleDuration.Collect(ch)
	m.zoneResultsTotal.Collect(ch)
	m.zonesMonitored.Collect(ch)
	m.zonesDeferred.Collect(ch)
}

// RecordCycle increments the cycle counter
func (m *MonitorMetrics) RecordCycle(kind string) {
	m.cyclesTotal.WithLabelValues(kind).Inc()
}

// RecordCycleDuration records the duration of a cycle
func (m *MonitorMetrics) RecordCycleDuration(kind string, seconds float64) {
	m.cycleDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordZoneResult counts a per-zone refresh outcome
func (m *MonitorMetrics) RecordZoneResult(status string) {
	m.zoneResultsTotal.WithLabelValues(status).Inc()
}

// SetZonesMonitored updates the provisioned zone gauge
func (m *MonitorMetrics) SetZonesMonitored(count float64) {
	m.zonesMonitored.Set(count)
}

// RecordZoneDeferred counts a zone pushed to the next cycle by the deadline
func (m *MonitorMetrics) RecordZoneDeferred() {
	m.zonesDeferred.Inc()
}
