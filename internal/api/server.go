// Package api serves the read-only status surface: zone listings, cached
// imagery and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/imagecache"
	"github.com/satwatch/satwatch-go/internal/logging"
	"github.com/satwatch/satwatch-go/internal/monitor"
	"github.com/satwatch/satwatch-go/internal/observability"
)

// Server is the HTTP status endpoint. All routes are read-only.
type Server struct {
	Echo     *echo.Echo
	settings *conf.Settings
	store    datastore.Interface
	cache    *imagecache.Cache
	status   *monitor.StatusRegistry
	logger   *slog.Logger
}

// zoneResponse is a zone joined with its cache row and runtime health.
type zoneResponse struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Priority        string              `json:"priority"`
	BBox            [4]float64          `json:"bbox"`
	LastRefreshedAt *time.Time          `json:"last_refreshed_at,omitempty"`
	Image           *imageResponse      `json:"image,omitempty"`
	Status          *monitor.ZoneStatus `json:"status,omitempty"`
}

type imageResponse struct {
	AcquisitionDate time.Time `json:"acquisition_date"`
	CloudCover      float64   `json:"cloud_cover"`
	Format          string    `json:"format"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	Provider        string    `json:"provider"`
	Collection      string    `json:"collection"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// New builds the server and registers its routes.
func New(settings *conf.Settings, store datastore.Interface, cache *imagecache.Cache,
	status *monitor.StatusRegistry, observed *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		Echo:     e,
		settings: settings,
		store:    store,
		cache:    cache,
		status:   status,
		logger:   logging.ForService("api"),
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/api/v1/zones", s.handleZones)
	e.GET("/api/v1/zones/:id", s.handleZone)
	e.GET("/api/v1/zones/:id/image", s.handleZoneImage)
	if observed != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(observed.Registry(), promhttp.HandlerOpts{})))
	}

	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", "address", s.settings.API.Listen)
		errCh <- s.Echo.Start(s.settings.API.Listen)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	count, err := s.store.CountZones()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "datastore unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"zones":  count,
	})
}

func (s *Server) handleZones(c echo.Context) error {
	priority := c.QueryParam("priority")
	if priority != "" && priority != datastore.PriorityHigh && priority != datastore.PriorityNormal {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown priority")
	}

	zones, err := s.store.GetZones(priority)
	if err != nil {
		s.logger.Error("Zone listing failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list zones")
	}

	out := make([]zoneResponse, 0, len(zones))
	for i := range zones {
		out = append(out, s.zoneResponse(&zones[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleZone(c echo.Context) error {
	zone, err := s.store.GetZone(c.Param("id"))
	if err != nil {
		if errors.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "zone not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load zone")
	}
	return c.JSON(http.StatusOK, s.zoneResponse(&zone))
}

// handleZoneImage streams the cached artifact for a zone.
func (s *Server) handleZoneImage(c echo.Context) error {
	zoneID := c.Param("id")
	image, err := s.cache.Get(zoneID)
	if err != nil {
		if errors.Is(err, imagecache.ErrNoImage) {
			return echo.NewHTTPError(http.StatusNotFound, "no cached image for zone")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load image")
	}
	return c.File(image.ArtifactPath)
}

func (s *Server) zoneResponse(zone *datastore.Zone) zoneResponse {
	bbox := zone.BBox()
	resp := zoneResponse{
		ID:              zone.ID,
		Name:            zone.Name,
		Priority:        zone.Priority,
		BBox:            [4]float64{bbox.West, bbox.South, bbox.East, bbox.North},
		LastRefreshedAt: zone.LastRefreshedAt,
	}

	if image, err := s.cache.Get(zone.ID); err == nil {
		resp.Image = &imageResponse{
			AcquisitionDate: image.AcquisitionDate,
			CloudCover:      image.CloudCover,
			Format:          image.Format,
			Width:           image.Width,
			Height:          image.Height,
			Provider:        image.Provider,
			Collection:      image.Collection,
			FetchedAt:       image.FetchedAt,
		}
	}
	if s.status != nil {
		if status, ok := s.status.Get(zone.ID); ok {
			resp.Status = &status
		}
	}
	return resp
}
