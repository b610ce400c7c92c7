package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/geo"
)

// newTestStore opens a SQLite store backed by a per-test temp file.
func newTestStore(t *testing.T) Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testZone(id, priority string) *Zone {
	z := &Zone{ID: id, Name: id, Priority: priority}
	z.SetBBox(geo.BBox{West: 36.9, South: 36.0, East: 37.4, North: 36.4})
	return z
}

func TestSaveZoneIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	zone := testZone("aleppo", PriorityHigh)
	require.NoError(t, store.SaveZone(zone))

	refreshed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateZoneRefreshedAt("aleppo", refreshed))

	// Re-provisioning changes name and priority but keeps the refresh stamp.
	update := testZone("aleppo", PriorityNormal)
	update.Name = "Aleppo Governorate"
	require.NoError(t, store.SaveZone(update))

	got, err := store.GetZone("aleppo")
	require.NoError(t, err)
	assert.Equal(t, "Aleppo Governorate", got.Name)
	assert.Equal(t, PriorityNormal, got.Priority)
	require.NotNil(t, got.LastRefreshedAt)
	assert.WithinDuration(t, refreshed, *got.LastRefreshedAt, time.Second)

	count, err := store.CountZones()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSaveZoneRejectsBadInput(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	degenerate := &Zone{ID: "point", Name: "point", Priority: PriorityNormal}
	degenerate.SetBBox(geo.BBox{West: 10, South: 10, East: 10, North: 10})
	assert.Error(t, store.SaveZone(degenerate), "zero-area bbox")

	badPriority := testZone("z", "urgent")
	assert.Error(t, store.SaveZone(badPriority), "unknown priority tier")
}

func TestGetZonesOrdering(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	// normal tier: one stale, one fresh, one never refreshed
	require.NoError(t, store.SaveZone(testZone("normal-stale", PriorityNormal)))
	require.NoError(t, store.SaveZone(testZone("normal-fresh", PriorityNormal)))
	require.NoError(t, store.SaveZone(testZone("normal-never", PriorityNormal)))
	// high tier: one refreshed, one never
	require.NoError(t, store.SaveZone(testZone("high-fresh", PriorityHigh)))
	require.NoError(t, store.SaveZone(testZone("high-never", PriorityHigh)))

	now := time.Now().UTC()
	require.NoError(t, store.UpdateZoneRefreshedAt("normal-stale", now.Add(-48*time.Hour)))
	require.NoError(t, store.UpdateZoneRefreshedAt("normal-fresh", now.Add(-1*time.Hour)))
	require.NoError(t, store.UpdateZoneRefreshedAt("high-fresh", now.Add(-2*time.Hour)))

	zones, err := store.GetZones("")
	require.NoError(t, err)
	require.Len(t, zones, 5)

	ids := make([]string, len(zones))
	for i := range zones {
		ids[i] = zones[i].ID
	}
	// high tier first; inside each tier never-refreshed first, then oldest.
	assert.Equal(t, []string{"high-never", "high-fresh", "normal-never", "normal-stale", "normal-fresh"}, ids)

	high, err := store.GetZones(PriorityHigh)
	require.NoError(t, err)
	require.Len(t, high, 2)
	assert.Equal(t, "high-never", high[0].ID)
}

func TestGetZoneNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.GetZone("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	assert.Error(t, store.UpdateZoneRefreshedAt("missing", time.Now()))
}

func TestSaveZoneImageKeepsSingleRow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SaveZone(testZone("aleppo", PriorityHigh)))

	first := &ZoneImage{
		ZoneID:          "aleppo",
		ArtifactPath:    "/artifacts/aleppo/a.png",
		Width:           1024,
		Height:          1024,
		Format:          "png",
		AcquisitionDate: time.Date(2026, 8, 20, 8, 30, 0, 0, time.UTC),
		CloudCover:      12.5,
		Provider:        "sentinel-hub",
		Collection:      "sentinel-2-l2a",
		FetchedAt:       time.Now().UTC(),
	}
	require.NoError(t, store.SaveZoneImage(first))

	second := *first
	second.ID = 0
	second.ArtifactPath = "/artifacts/aleppo/b.png"
	second.AcquisitionDate = first.AcquisitionDate.Add(72 * time.Hour)
	second.CloudCover = 4.0
	require.NoError(t, store.SaveZoneImage(&second))

	images, err := store.GetAllZoneImages()
	require.NoError(t, err)
	require.Len(t, images, 1, "zone must never have more than one cached image row")
	assert.Equal(t, "/artifacts/aleppo/b.png", images[0].ArtifactPath)
	assert.InDelta(t, 4.0, images[0].CloudCover, 0.001)

	got, err := store.GetZoneImage("aleppo")
	require.NoError(t, err)
	assert.WithinDuration(t, second.AcquisitionDate, got.AcquisitionDate, time.Second)
}

func TestZoneImageNotFoundAndDelete(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.GetZoneImage("nothing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, store.SaveZone(testZone("z", PriorityNormal)))
	require.NoError(t, store.SaveZoneImage(&ZoneImage{
		ZoneID:          "z",
		ArtifactPath:    "/artifacts/z/a.png",
		Format:          "png",
		AcquisitionDate: time.Now().UTC(),
		FetchedAt:       time.Now().UTC(),
	}))
	require.NoError(t, store.DeleteZoneImage("z"))

	_, err = store.GetZoneImage("z")
	assert.True(t, errors.IsNotFound(err))
}

func TestCloseReleasesConnectionPool(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.SaveZone(testZone("z", PriorityNormal)))
	require.NoError(t, store.Close())

	// A closed store must refuse further work instead of holding the pool
	// open in the background.
	_, err := store.GetZones("")
	assert.Error(t, err)
	assert.NoError(t, store.Close(), "Close is idempotent")
}
