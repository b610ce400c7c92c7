package imagecache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/geo"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x01, 0x02}

// newTestCache wires a cache onto a temp-dir SQLite store and artifact dir.
func newTestCache(t *testing.T) (*Cache, datastore.Interface) {
	t.Helper()

	dir := t.TempDir()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(dir, "test.db")
	settings.Imagery.ExportPath = filepath.Join(dir, "artifacts")
	settings.Monitor.NegativeCacheTTL = 25

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	cache, err := New(settings, store, nil)
	require.NoError(t, err)
	return cache, store
}

func saveTestZone(t *testing.T, store datastore.Interface, id string) {
	t.Helper()
	zone := &datastore.Zone{ID: id, Name: id, Priority: datastore.PriorityHigh}
	zone.SetBBox(geo.BBox{West: 36.9, South: 36.0, East: 37.4, North: 36.4})
	require.NoError(t, store.SaveZone(zone))
}

func testMetadata(acquired time.Time) Metadata {
	return Metadata{
		Width:           1024,
		Height:          1024,
		Format:          "png",
		AcquisitionDate: acquired,
		CloudCover:      8.5,
		Provider:        "sentinel-hub",
		Collection:      "sentinel-2-l2a",
	}
}

func TestUpsertCreatesArtifactAndRow(t *testing.T) {
	cache, store := newTestCache(t)
	saveTestZone(t, store, "aleppo")

	acquired := time.Date(2026, 8, 20, 8, 30, 0, 0, time.UTC)
	record, err := cache.Upsert("aleppo", pngBytes, testMetadata(acquired))
	require.NoError(t, err)

	data, err := os.ReadFile(record.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, ".png", filepath.Ext(record.ArtifactPath))

	got, err := cache.Get("aleppo")
	require.NoError(t, err)
	assert.Equal(t, record.ArtifactPath, got.ArtifactPath)
	assert.WithinDuration(t, acquired, got.AcquisitionDate, time.Second)
}

func TestUpsertReplacesOlderImage(t *testing.T) {
	cache, store := newTestCache(t)
	saveTestZone(t, store, "aleppo")

	first := time.Date(2026, 8, 18, 8, 30, 0, 0, time.UTC)
	firstRecord, err := cache.Upsert("aleppo", pngBytes, testMetadata(first))
	require.NoError(t, err)

	second := first.Add(48 * time.Hour)
	secondRecord, err := cache.Upsert("aleppo", pngBytes, testMetadata(second))
	require.NoError(t, err)

	// One row, pointing at the new artifact; the old artifact is gone.
	images, err := store.GetAllZoneImages()
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, secondRecord.ArtifactPath, images[0].ArtifactPath)

	_, err = os.Stat(firstRecord.ArtifactPath)
	assert.True(t, os.IsNotExist(err), "replaced artifact must be removed")
	_, err = os.Stat(secondRecord.ArtifactPath)
	assert.NoError(t, err)
}

func TestUpsertRejectsNotFresher(t *testing.T) {
	cache, store := newTestCache(t)
	saveTestZone(t, store, "aleppo")

	acquired := time.Date(2026, 8, 20, 8, 30, 0, 0, time.UTC)
	current, err := cache.Upsert("aleppo", pngBytes, testMetadata(acquired))
	require.NoError(t, err)

	// Same acquisition date: not fresher.
	got, err := cache.Upsert("aleppo", pngBytes, testMetadata(acquired))
	require.ErrorIs(t, err, ErrNotFresher)
	assert.Equal(t, current.ArtifactPath, got.ArtifactPath)

	// Older acquisition date: also rejected.
	_, err = cache.Upsert("aleppo", pngBytes, testMetadata(acquired.Add(-24*time.Hour)))
	require.ErrorIs(t, err, ErrNotFresher)

	// The cache row is untouched either way.
	stored, err := cache.Get("aleppo")
	require.NoError(t, err)
	assert.WithinDuration(t, acquired, stored.AcquisitionDate, time.Second)
	assert.Equal(t, current.ArtifactPath, stored.ArtifactPath)
}

func TestUpsertInvalidBytesLeavesCacheUntouched(t *testing.T) {
	cache, store := newTestCache(t)
	saveTestZone(t, store, "aleppo")

	acquired := time.Date(2026, 8, 18, 8, 30, 0, 0, time.UTC)
	current, err := cache.Upsert("aleppo", pngBytes, testMetadata(acquired))
	require.NoError(t, err)

	_, err = cache.Upsert("aleppo", []byte("<html>error</html>"), testMetadata(acquired.Add(24*time.Hour)))
	require.Error(t, err)

	stored, err := cache.Get("aleppo")
	require.NoError(t, err)
	assert.Equal(t, current.ArtifactPath, stored.ArtifactPath)
	assert.WithinDuration(t, acquired, stored.AcquisitionDate, time.Second)

	// No stray artifacts were left behind.
	entries, err := os.ReadDir(filepath.Dir(current.ArtifactPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetMissingZone(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.Get("never-refreshed")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestNegativeCache(t *testing.T) {
	cache, store := newTestCache(t)
	saveTestZone(t, store, "aleppo")

	assert.False(t, cache.HasRecentNoImagery("aleppo"))

	cache.MarkNoImagery("aleppo")
	assert.True(t, cache.HasRecentNoImagery("aleppo"))

	// A successful upsert clears the negative entry.
	acquired := time.Date(2026, 8, 20, 8, 30, 0, 0, time.UTC)
	_, err := cache.Upsert("aleppo", pngBytes, testMetadata(acquired))
	require.NoError(t, err)
	assert.False(t, cache.HasRecentNoImagery("aleppo"))
}

func TestPruneOrphans(t *testing.T) {
	cache, store := newTestCache(t)
	saveTestZone(t, store, "aleppo")

	acquired := time.Date(2026, 8, 20, 8, 30, 0, 0, time.UTC)
	record, err := cache.Upsert("aleppo", pngBytes, testMetadata(acquired))
	require.NoError(t, err)

	// Simulate a crash between artifact write and pointer swap.
	orphan := filepath.Join(filepath.Dir(record.ArtifactPath), "dead-beef.png")
	require.NoError(t, os.WriteFile(orphan, pngBytes, 0o600))

	removed, err := cache.PruneOrphans()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(record.ArtifactPath)
	assert.NoError(t, err, "referenced artifact must survive pruning")
}
