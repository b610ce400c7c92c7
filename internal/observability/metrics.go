// Package observability aggregates the application's Prometheus metric
// collectors behind a single registry.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/satwatch/satwatch-go/internal/observability/metrics"
)

// Metrics holds all metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Provider   *metrics.ProviderMetrics
	ImageCache *metrics.ImageCacheMetrics
	Monitor    *metrics.MonitorMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	providerMetrics, err := metrics.NewProviderMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider metrics: %w", err)
	}

	imageCacheMetrics, err := metrics.NewImageCacheMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache metrics: %w", err)
	}

	monitorMetrics, err := metrics.NewMonitorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Provider:   providerMetrics,
		ImageCache: imageCacheMetrics,
		Monitor:    monitorMetrics,
	}, nil
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
