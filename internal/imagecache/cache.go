// Package imagecache persists exactly one current satellite image per zone.
// The write order is fixed: new artifact first, then the cache pointer swap,
// then removal of the old artifact, so a failure at any point never leaves a
// zone without a valid image.
package imagecache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/logging"
	"github.com/satwatch/satwatch-go/internal/observability/metrics"
	"github.com/satwatch/satwatch-go/internal/provider"
)

// Sentinel results callers branch on; neither indicates a broken cache.
var (
	// ErrNoImage means the zone has never been successfully refreshed.
	ErrNoImage = errors.NewStd("no cached image for zone")

	// ErrNotFresher means the candidate's acquisition date is not newer than
	// the cached one, so the cache was deliberately left untouched.
	ErrNotFresher = errors.NewStd("no fresher imagery")
)

// Metadata describes the image being cached.
type Metadata struct {
	Width           int
	Height          int
	Format          string
	AcquisitionDate time.Time
	CloudCover      float64
	Provider        string
	Collection      string
}

// Cache is the per-zone image cache: artifacts on disk, the pointer rows in
// the metadata store.
type Cache struct {
	store     datastore.Interface
	dir       string
	negatives *gocache.Cache
	metrics   *metrics.ImageCacheMetrics
	logger    *slog.Logger
}

// New creates the cache rooted at the configured export path. The metrics
// argument may be nil.
func New(settings *conf.Settings, store datastore.Interface, cacheMetrics *metrics.ImageCacheMetrics) (*Cache, error) {
	dir := conf.GetBasePath(settings.Imagery.ExportPath)

	negativeTTL := time.Duration(settings.Monitor.NegativeCacheTTL) * time.Minute
	if negativeTTL <= 0 {
		negativeTTL = 25 * time.Minute
	}

	return &Cache{
		store:     store,
		dir:       dir,
		negatives: gocache.New(negativeTTL, 2*negativeTTL),
		metrics:   cacheMetrics,
		logger:    logging.ForService("imagecache"),
	}, nil
}

// Get returns the current cached image record for a zone, or ErrNoImage when
// the zone has never been refreshed.
func (c *Cache) Get(zoneID string) (datastore.ZoneImage, error) {
	image, err := c.store.GetZoneImage(zoneID)
	if err != nil {
		if errors.IsNotFound(err) {
			return datastore.ZoneImage{}, ErrNoImage
		}
		return datastore.ZoneImage{}, err
	}
	return image, nil
}

// Upsert inserts or replaces the cached image for a zone. The new artifact is
// validated and written before the pointer swap; the old artifact is removed
// only after the swap succeeded. Candidates that are not strictly fresher
// than the cached image are rejected with ErrNotFresher.
func (c *Cache) Upsert(zoneID string, data []byte, meta Metadata) (datastore.ZoneImage, error) {
	current, err := c.store.GetZoneImage(zoneID)
	haveCurrent := err == nil
	if err != nil && !errors.IsNotFound(err) {
		return datastore.ZoneImage{}, err
	}

	if haveCurrent && !meta.AcquisitionDate.After(current.AcquisitionDate) {
		c.logger.Info("no fresher imagery",
			"zone_id", zoneID,
			"cached_acquisition", current.AcquisitionDate.Format(time.RFC3339),
			"candidate_acquisition", meta.AcquisitionDate.Format(time.RFC3339))
		if c.metrics != nil {
			c.metrics.RecordFreshnessRejection()
		}
		return current, ErrNotFresher
	}

	// Validate before any filesystem or database side effects.
	if err := provider.ValidateImageBytes(data, meta.Format); err != nil {
		if c.metrics != nil {
			c.metrics.RecordUpsert("error")
		}
		return datastore.ZoneImage{}, err
	}

	artifactPath, err := c.writeArtifact(zoneID, data, meta.Format)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordArtifactWriteError()
			c.metrics.RecordUpsert("error")
		}
		return datastore.ZoneImage{}, err
	}

	record := datastore.ZoneImage{
		ZoneID:          zoneID,
		ArtifactPath:    artifactPath,
		Width:           meta.Width,
		Height:          meta.Height,
		Format:          meta.Format,
		AcquisitionDate: meta.AcquisitionDate,
		CloudCover:      meta.CloudCover,
		Provider:        meta.Provider,
		Collection:      meta.Collection,
		FetchedAt:       time.Now(),
	}
	if haveCurrent {
		record.ID = current.ID
	}

	if err := c.store.SaveZoneImage(&record); err != nil {
		// The swap failed; the old pointer still references the old artifact,
		// so only the new orphan needs cleaning up.
		if removeErr := os.Remove(artifactPath); removeErr != nil {
			c.logger.Warn("Failed to remove orphaned artifact",
				"path", artifactPath, "error", removeErr)
		}
		if c.metrics != nil {
			c.metrics.RecordUpsert("error")
		}
		return datastore.ZoneImage{}, err
	}

	// Old artifact removal is best effort; PruneOrphans catches leftovers.
	if haveCurrent && current.ArtifactPath != "" && current.ArtifactPath != artifactPath {
		if err := os.Remove(current.ArtifactPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("Failed to remove replaced artifact",
				"zone_id", zoneID, "path", current.ArtifactPath, "error", err)
		}
	}

	c.negatives.Delete(zoneID)
	if c.metrics != nil {
		c.metrics.RecordUpsert("success")
	}
	c.logger.Debug("Cached zone image",
		"zone_id", zoneID,
		"acquisition", meta.AcquisitionDate.Format(time.RFC3339),
		"cloud_cover", meta.CloudCover,
		"artifact", artifactPath)
	return record, nil
}

// MarkNoImagery remembers that the catalog had nothing acceptable for a
// zone, so back-to-back cycles skip the search.
func (c *Cache) MarkNoImagery(zoneID string) {
	c.negatives.SetDefault(zoneID, time.Now())
}

// HasRecentNoImagery reports whether the zone recently came back empty from
// the catalog.
func (c *Cache) HasRecentNoImagery(zoneID string) bool {
	_, found := c.negatives.Get(zoneID)
	if found && c.metrics != nil {
		c.metrics.RecordNegativeCacheHit()
	}
	return found
}

// writeArtifact writes the image bytes under the zone's artifact directory
// using a temp file and rename, and returns the final path.
func (c *Cache) writeArtifact(zoneID string, data []byte, format string) (string, error) {
	zoneDir := filepath.Join(c.dir, zoneID)
	if err := os.MkdirAll(zoneDir, 0o750); err != nil {
		return "", errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "create_zone_dir").
			Context("zone_id", zoneID).
			Build()
	}

	finalPath := filepath.Join(zoneDir, fmt.Sprintf("%s.%s", uuid.New().String(), extensionFor(format)))

	tempFile, err := os.CreateTemp(zoneDir, "artifact-*.tmp")
	if err != nil {
		return "", errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_artifact").
			Context("zone_id", zoneID).
			Build()
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return "", errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "write_artifact").
			Context("zone_id", zoneID).
			Build()
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return "", errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "close_artifact").
			Context("zone_id", zoneID).
			Build()
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", errors.New(err).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "rename_artifact").
			Context("zone_id", zoneID).
			Build()
	}

	return finalPath, nil
}

// extensionFor maps an image format to its artifact file extension.
func extensionFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// PruneOrphans removes artifacts on disk that no cache row references.
// Called at startup to clean up after crashes between artifact write and
// pointer swap.
func (c *Cache) PruneOrphans() (int, error) {
	images, err := c.store.GetAllZoneImages()
	if err != nil {
		return 0, err
	}

	referenced := make(map[string]bool, len(images))
	for i := range images {
		referenced[filepath.Clean(images[i].ArtifactPath)] = true
	}
	if c.metrics != nil {
		c.metrics.SetCachedZones(float64(len(images)))
	}

	removed := 0
	walkErr := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if referenced[filepath.Clean(path)] {
			return nil
		}
		if err := os.Remove(path); err != nil {
			c.logger.Warn("Failed to prune orphaned artifact", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return removed, errors.New(walkErr).
			Component("imagecache").
			Category(errors.CategoryFileIO).
			Context("operation", "prune_orphans").
			Build()
	}

	if removed > 0 {
		c.logger.Info("Pruned orphaned artifacts", "count", removed)
	}
	return removed, nil
}
