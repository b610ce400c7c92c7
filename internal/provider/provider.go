// Package provider implements the client for the satellite imagery provider:
// OAuth2 client-credentials authentication, catalog search with quality
// filters and rendered image retrieval, all behind one retry/backoff policy.
package provider

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/geo"
	"github.com/satwatch/satwatch-go/internal/logging"
	"github.com/satwatch/satwatch-go/internal/observability/metrics"
)

const userAgent = "SatWatch/1.0"

// Sentinel errors used by the scheduler to classify per-zone outcomes.
var (
	// ErrAuthRejected means the provider rejected our client credentials.
	// Retrying other zones in the same cycle is pointless until the
	// credentials are fixed.
	ErrAuthRejected = errors.NewStd("provider rejected client credentials")

	// ErrInvalidImageData means fetched bytes failed validation twice.
	ErrInvalidImageData = errors.NewStd("fetched image failed validation")

	// ErrRateLimited means the provider kept answering 429 past the retry
	// budget.
	ErrRateLimited = errors.NewStd("provider rate limit exceeded")
)

// SceneCandidate is an ephemeral catalog result describing one available
// scene over a zone. Candidates are never persisted; they exist only while
// the freshest acceptable one is being selected.
type SceneCandidate struct {
	ID              string
	AcquisitionTime time.Time
	CloudCover      float64
	Collection      string
}

// ImageData holds a rendered raster returned by the processing endpoint.
type ImageData struct {
	Bytes       []byte
	ContentType string
}

// SearchRequest describes one catalog query.
type SearchRequest struct {
	BBox          geo.BBox
	LookbackDays  int
	MaxCloudCover float64
	Limit         int
}

// FetchRequest describes one rendered image request.
type FetchRequest struct {
	BBox          geo.BBox
	From          time.Time
	To            time.Time
	Width         int
	Height        int
	Format        string // png, jpeg or tiff
	Script        string // band-combination script identifier
	MaxCloudCover float64
}

// Searcher is the catalog search interface consumed by the scheduler.
type Searcher interface {
	SearchCatalog(ctx context.Context, req SearchRequest) ([]SceneCandidate, error)
}

// Fetcher is the image retrieval interface consumed by the scheduler.
type Fetcher interface {
	FetchImage(ctx context.Context, req FetchRequest) (ImageData, error)
}

// Client talks to the imagery provider. One instance is constructed at
// startup and shared by all zone workers; the token cache and the rate
// limiter are the only mutable state.
type Client struct {
	settings   *conf.ProviderSettings
	httpClient *http.Client
	auth       *TokenManager
	limiter    *rate.Limiter
	retry      RetryPolicy
	metrics    *metrics.ProviderMetrics
	logger     *slog.Logger
}

// NewClient builds the provider client from settings. The metrics argument
// may be nil.
func NewClient(settings *conf.ProviderSettings, providerMetrics *metrics.ProviderMetrics) *Client {
	httpClient := &http.Client{
		Timeout: time.Duration(settings.RequestTimeout) * time.Second,
	}

	limit := rate.Limit(settings.RateLimit)
	if settings.RateLimit <= 0 {
		limit = rate.Inf
	}

	return &Client{
		settings:   settings,
		httpClient: httpClient,
		auth:       NewTokenManager(settings, httpClient, providerMetrics),
		limiter:    rate.NewLimiter(limit, 1),
		retry:      NewRetryPolicy(settings.MaxRetries),
		metrics:    providerMetrics,
		logger:     logging.ForService("provider"),
	}
}

// Auth exposes the token manager, mainly for tests and diagnostics.
func (c *Client) Auth() *TokenManager {
	return c.auth
}
