// model.go this code defines the data model for the application
package datastore

import (
	"time"

	"github.com/satwatch/satwatch-go/internal/geo"
)

// Zone priority tiers. High-tier zones are refreshed on the priority sweep
// cadence, normal-tier zones only on the full sweep.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// Zone represents a monitored geographic zone of interest. Zones are created
// by an external provisioning process; the scheduler only updates
// LastRefreshedAt.
type Zone struct {
	ID              string `gorm:"primaryKey"` // stable id assigned by provisioning
	Name            string
	Priority        string `gorm:"index:idx_zones_priority;default:normal"` // "high" or "normal"
	West            float64
	South           float64
	East            float64
	North           float64
	LastRefreshedAt *time.Time `gorm:"index:idx_zones_refreshed"` // nil until first successful refresh
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BBox returns the zone's bounding box.
func (z *Zone) BBox() geo.BBox {
	return geo.BBox{West: z.West, South: z.South, East: z.East, North: z.North}
}

// SetBBox stores the bounding box coordinates on the zone.
func (z *Zone) SetBBox(b geo.BBox) {
	z.West, z.South, z.East, z.North = b.West, b.South, b.East, b.North
}

// ZoneImage represents the single cached image record for a zone. The unique
// index on ZoneID enforces the at-most-one-live-row invariant at the schema
// level.
type ZoneImage struct {
	ID              uint   `gorm:"primaryKey"`
	ZoneID          string `gorm:"uniqueIndex;not null"` // FK to Zone.ID
	ArtifactPath    string // path of the image artifact on disk
	Width           int
	Height          int
	Format          string    // png, jpeg or tiff
	AcquisitionDate time.Time `gorm:"index"` // when the scene was acquired by the satellite
	CloudCover      float64   // scene cloud cover percentage
	Provider        string    // imagery provider name
	Collection      string    // provider collection the scene came from
	FetchedAt       time.Time // when the image was fetched and cached
}
