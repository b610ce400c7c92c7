package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/geo"
	"github.com/satwatch/satwatch-go/internal/imagecache"
	"github.com/satwatch/satwatch-go/internal/monitor"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x01, 0x02}

func newTestServer(t *testing.T) (*Server, datastore.Interface, *imagecache.Cache, *monitor.StatusRegistry) {
	t.Helper()

	dir := t.TempDir()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(dir, "test.db")
	settings.Imagery.ExportPath = filepath.Join(dir, "artifacts")
	settings.API.Enabled = true
	settings.API.Listen = "127.0.0.1:0"

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	cache, err := imagecache.New(settings, store, nil)
	require.NoError(t, err)

	status := monitor.NewStatusRegistry()
	server := New(settings, store, cache, status, nil)
	return server, store, cache, status
}

func seedZone(t *testing.T, store datastore.Interface, id, priority string) {
	t.Helper()
	zone := &datastore.Zone{ID: id, Name: id, Priority: priority}
	zone.SetBBox(geo.BBox{West: 36.9, South: 36.0, East: 37.4, North: 36.4})
	require.NoError(t, store.SaveZone(zone))
}

func doRequest(server *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	server.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedZone(t, store, "aleppo", datastore.PriorityHigh)

	rec := doRequest(server, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["zones"])
}

func TestListZones(t *testing.T) {
	server, store, cache, status := newTestServer(t)
	seedZone(t, store, "aleppo", datastore.PriorityHigh)
	seedZone(t, store, "delta", datastore.PriorityNormal)

	_, err := cache.Upsert("aleppo", pngBytes, imagecache.Metadata{
		Width:           512,
		Height:          512,
		Format:          "png",
		AcquisitionDate: time.Date(2026, 8, 20, 8, 30, 0, 0, time.UTC),
		CloudCover:      8.5,
		Provider:        "sentinel-hub",
		Collection:      "sentinel-2-l2a",
	})
	require.NoError(t, err)
	status.RecordSuccess("aleppo", time.Now())

	rec := doRequest(server, http.MethodGet, "/api/v1/zones")
	require.Equal(t, http.StatusOK, rec.Code)

	var zones []zoneResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zones))
	require.Len(t, zones, 2)

	byID := map[string]zoneResponse{}
	for _, z := range zones {
		byID[z.ID] = z
	}
	require.NotNil(t, byID["aleppo"].Image)
	assert.InDelta(t, 8.5, byID["aleppo"].Image.CloudCover, 0.001)
	require.NotNil(t, byID["aleppo"].Status)
	assert.Equal(t, monitor.StateOK, byID["aleppo"].Status.State)
	assert.Nil(t, byID["delta"].Image, "zone without cached image has no image block")

	// Tier filtering.
	rec = doRequest(server, http.MethodGet, "/api/v1/zones?priority=high")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zones))
	require.Len(t, zones, 1)
	assert.Equal(t, "aleppo", zones[0].ID)

	rec = doRequest(server, http.MethodGet, "/api/v1/zones?priority=urgent")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetZone(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedZone(t, store, "aleppo", datastore.PriorityHigh)

	rec := doRequest(server, http.MethodGet, "/api/v1/zones/aleppo")
	require.Equal(t, http.StatusOK, rec.Code)

	var zone zoneResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zone))
	assert.Equal(t, "aleppo", zone.ID)
	assert.Equal(t, [4]float64{36.9, 36.0, 37.4, 36.4}, zone.BBox)

	rec = doRequest(server, http.MethodGet, "/api/v1/zones/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetZoneImage(t *testing.T) {
	server, store, cache, _ := newTestServer(t)
	seedZone(t, store, "aleppo", datastore.PriorityHigh)

	rec := doRequest(server, http.MethodGet, "/api/v1/zones/aleppo/image")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no cached image yet")

	_, err := cache.Upsert("aleppo", pngBytes, imagecache.Metadata{
		Format:          "png",
		AcquisitionDate: time.Date(2026, 8, 20, 8, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec = doRequest(server, http.MethodGet, "/api/v1/zones/aleppo/image")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
}
