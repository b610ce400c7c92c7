// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the monitoring pipeline needs.
type Interface interface {
	Open() error
	Close() error
	// zones
	SaveZone(zone *Zone) error
	GetZone(id string) (Zone, error)
	GetZones(priority string) ([]Zone, error)
	CountZones() (int64, error)
	UpdateZoneRefreshedAt(id string, refreshedAt time.Time) error
	// zone images
	GetZoneImage(zoneID string) (ZoneImage, error)
	GetAllZoneImages() ([]ZoneImage, error)
	SaveZoneImage(image *ZoneImage) error
	DeleteZoneImage(zoneID string) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
// Returns nil when no database backend is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// SaveZone inserts or updates a zone, keyed by its id. The operation is
// idempotent: re-provisioning an existing zone overwrites its name, priority
// and bounding box but leaves LastRefreshedAt alone.
func (ds *DataStore) SaveZone(zone *Zone) error {
	bbox := zone.BBox()
	bbox.Normalize()
	if err := bbox.Validate(); err != nil {
		return err
	}
	zone.SetBBox(bbox)

	if zone.Priority != PriorityHigh && zone.Priority != PriorityNormal {
		return errors.Newf("invalid zone priority %q", zone.Priority).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("zone_id", zone.ID).
			Build()
	}

	err := ds.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "priority", "west", "south", "east", "north", "updated_at",
		}),
	}).Create(zone).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_zone").
			Context("zone_id", zone.ID).
			Build()
	}
	return nil
}

// GetZone retrieves a zone by its id.
func (ds *DataStore) GetZone(id string) (Zone, error) {
	var zone Zone
	if err := ds.DB.First(&zone, "id = ?", id).Error; err != nil {
		category := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			category = errors.CategoryNotFound
		}
		return Zone{}, errors.New(err).
			Component("datastore").
			Category(category).
			Context("operation", "get_zone").
			Context("zone_id", id).
			Build()
	}
	return zone, nil
}

// GetZones returns zones matching the given priority tier, or all zones when
// priority is empty. Results are ordered by tier (high first), then by
// staleness within the tier: zones never refreshed sort first, then oldest
// last_refreshed_at, so rotation within a tier is fair.
func (ds *DataStore) GetZones(priority string) ([]Zone, error) {
	var zones []Zone
	query := ds.DB.Model(&Zone{})
	if priority != "" {
		query = query.Where("priority = ?", priority)
	}
	err := query.
		Order("CASE priority WHEN 'high' THEN 0 ELSE 1 END").
		Order("last_refreshed_at IS NOT NULL").
		Order("last_refreshed_at ASC").
		Find(&zones).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_zones").
			Context("priority", priority).
			Build()
	}
	return zones, nil
}

// CountZones returns the number of provisioned zones.
func (ds *DataStore) CountZones() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Zone{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_zones").
			Build()
	}
	return count, nil
}

// UpdateZoneRefreshedAt records a successful refresh time for a zone.
func (ds *DataStore) UpdateZoneRefreshedAt(id string, refreshedAt time.Time) error {
	result := ds.DB.Model(&Zone{}).Where("id = ?", id).
		Update("last_refreshed_at", refreshedAt)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_zone_refreshed_at").
			Context("zone_id", id).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("zone %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("operation", "update_zone_refreshed_at").
			Build()
	}
	return nil
}

// GetZoneImage retrieves the current cached image record for a zone.
func (ds *DataStore) GetZoneImage(zoneID string) (ZoneImage, error) {
	var image ZoneImage
	if err := ds.DB.First(&image, "zone_id = ?", zoneID).Error; err != nil {
		category := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			category = errors.CategoryNotFound
		}
		return ZoneImage{}, errors.New(err).
			Component("datastore").
			Category(category).
			Context("operation", "get_zone_image").
			Context("zone_id", zoneID).
			Build()
	}
	return image, nil
}

// GetAllZoneImages returns every cached image record.
func (ds *DataStore) GetAllZoneImages() ([]ZoneImage, error) {
	var images []ZoneImage
	if err := ds.DB.Find(&images).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_all_zone_images").
			Build()
	}
	return images, nil
}

// SaveZoneImage inserts or replaces the cached image record for a zone in a
// single atomic statement, preserving the one-row-per-zone invariant even
// when workers race.
func (ds *DataStore) SaveZoneImage(image *ZoneImage) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "zone_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"artifact_path", "width", "height", "format", "acquisition_date",
			"cloud_cover", "provider", "collection", "fetched_at",
		}),
	}).Create(image).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_zone_image").
			Context("zone_id", image.ZoneID).
			Build()
	}
	return nil
}

// DeleteZoneImage removes the cached image record for a zone.
func (ds *DataStore) DeleteZoneImage(zoneID string) error {
	if err := ds.DB.Delete(&ZoneImage{}, "zone_id = ?", zoneID).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_zone_image").
			Context("zone_id", zoneID).
			Build()
	}
	return nil
}
