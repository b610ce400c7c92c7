// Package geo provides the bounding box type used to describe monitored zones
// and small helpers for working with WGS84 coordinates.
package geo

import (
	"encoding/json"
	"fmt"

	"github.com/satwatch/satwatch-go/internal/errors"
)

// kmPerDegree is the flat-earth approximation of one degree of arc at the
// equator. Longitude degrees shrink toward the poles, so width estimates for
// high-latitude zones overshoot; callers that care about metric accuracy above
// roughly 60 degrees latitude should not rely on these helpers.
const kmPerDegree = 111.32

// BBox is a geographic bounding box in WGS84 degrees.
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// NewBBox returns a normalized, validated bounding box.
func NewBBox(west, south, east, north float64) (BBox, error) {
	b := BBox{West: west, South: south, East: east, North: north}
	b.Normalize()
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Normalize orders the corners so that west < east and south < north.
func (b *BBox) Normalize() {
	if b.West > b.East {
		b.West, b.East = b.East, b.West
	}
	if b.South > b.North {
		b.South, b.North = b.North, b.South
	}
}

// Validate checks that the box has nonzero area and stays within the WGS84
// coordinate range. It assumes Normalize has been called.
func (b *BBox) Validate() error {
	if b.West < -180 || b.East > 180 || b.South < -90 || b.North > 90 {
		return errors.Newf("bounding box out of range: %s", b).
			Component("geo").
			Category(errors.CategoryValidation).
			Build()
	}
	if b.East-b.West <= 0 || b.North-b.South <= 0 {
		return errors.Newf("bounding box has zero area: %s", b).
			Component("geo").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// WidthKm returns the approximate east-west extent in kilometers using the
// flat 1° ≈ 111.32 km approximation. See the note on kmPerDegree.
func (b *BBox) WidthKm() float64 {
	return (b.East - b.West) * kmPerDegree
}

// HeightKm returns the approximate north-south extent in kilometers.
func (b *BBox) HeightKm() float64 {
	return (b.North - b.South) * kmPerDegree
}

// ApproxAreaKm2 returns the approximate area in square kilometers.
func (b *BBox) ApproxAreaKm2() float64 {
	return b.WidthKm() * b.HeightKm()
}

// Center returns the midpoint of the box as (longitude, latitude).
func (b *BBox) Center() (lon, lat float64) {
	return (b.West + b.East) / 2, (b.South + b.North) / 2
}

func (b BBox) String() string {
	return fmt.Sprintf("[%.4f,%.4f,%.4f,%.4f]", b.West, b.South, b.East, b.North)
}

// MarshalJSON encodes the box in the provider wire form
// [west, south, east, north].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.West, b.South, b.East, b.North})
}

// UnmarshalJSON decodes the [west, south, east, north] array form.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr [4]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	b.West, b.South, b.East, b.North = arr[0], arr[1], arr[2], arr[3]
	return nil
}
