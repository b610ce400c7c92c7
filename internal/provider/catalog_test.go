package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-go/internal/geo"
)

const (
	testSearchURL  = "https://services.provider.test/api/v1/catalog/1.0.0/search"
	testProcessURL = "https://services.provider.test/api/v1/process"
)

// newTestClient builds a client whose transport is intercepted by httpmock
// and whose backoff is fast enough for tests.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	c := NewClient(testProviderSettings(), nil)
	c.retry.InitialInterval = time.Millisecond
	c.retry.MaxInterval = 5 * time.Millisecond
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	var tokenCalls atomic.Int32
	registerTokenResponder(&tokenCalls, 3600)

	return c
}

func testSearchRequest() SearchRequest {
	return SearchRequest{
		BBox:          geo.BBox{West: 36.9, South: 36.0, East: 37.4, North: 36.4},
		LookbackDays:  7,
		MaxCloudCover: 20,
	}
}

func sceneFeature(id, datetime string, cloudCover float64) map[string]any {
	return map[string]any{
		"id":         id,
		"collection": "sentinel-2-l2a",
		"properties": map[string]any{
			"datetime":       datetime,
			"eo:cloud_cover": cloudCover,
		},
	}
}

func TestSearchCatalogSortsAndFilters(t *testing.T) {
	c := newTestClient(t)

	var captured catalogSearchRequest
	httpmock.RegisterResponder(http.MethodPost, testSearchURL,
		func(req *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &captured))

			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"features": []any{
					sceneFeature("older-clear", "2026-08-18T08:30:00Z", 2.0),
					sceneFeature("newest-hazy", "2026-08-20T08:30:00Z", 15.0),
					sceneFeature("newest-clear", "2026-08-20T08:30:00Z", 5.0),
					sceneFeature("too-cloudy", "2026-08-21T08:30:00Z", 80.0),
					map[string]any{
						"id":         "bad-datetime",
						"collection": "sentinel-2-l2a",
						"properties": map[string]any{"datetime": "not-a-timestamp"},
					},
				},
			})
		})

	candidates, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.NoError(t, err)

	// The over-threshold and unparseable scenes are dropped; the rest sort
	// newest first with cloud cover breaking the tie.
	require.Len(t, candidates, 3)
	assert.Equal(t, "newest-clear", candidates[0].ID)
	assert.Equal(t, "newest-hazy", candidates[1].ID)
	assert.Equal(t, "older-clear", candidates[2].ID)

	// Request wire format.
	assert.Equal(t, []string{"sentinel-2-l2a"}, captured.Collections)
	assert.Equal(t, [4]float64{36.9, 36.0, 37.4, 36.4}, captured.BBox)
	assert.Equal(t, "cql2-json", captured.FilterLang)
	assert.Contains(t, captured.Datetime, "/")
	require.NotNil(t, captured.Filter)
	assert.Equal(t, "<=", captured.Filter["op"])
}

func TestSearchCatalogEmptyResultIsNotAnError(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testSearchURL,
		httpmock.NewStringResponder(http.StatusOK, `{"features":[]}`))

	candidates, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSearchCatalogRetriesServerErrors(t *testing.T) {
	c := newTestClient(t)

	var calls atomic.Int32
	httpmock.RegisterResponder(http.MethodPost, testSearchURL,
		func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "down"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"features": []any{sceneFeature("s1", "2026-08-20T08:30:00Z", 3.0)},
			})
		})

	candidates, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSearchCatalogHonorsRetryAfter(t *testing.T) {
	c := newTestClient(t)

	var calls atomic.Int32
	httpmock.RegisterResponder(http.MethodPost, testSearchURL,
		func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				resp := httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down")
				resp.Header.Set("Retry-After", "0")
				return resp, nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"features": []any{}})
		})

	_, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSearchCatalogRateLimitExhaustsRetries(t *testing.T) {
	c := newTestClient(t)

	resp := httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down")
	resp.Header.Set("Retry-After", "0")
	httpmock.RegisterResponder(http.MethodPost, testSearchURL, httpmock.ResponderFromResponse(resp))

	_, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSearchCatalogPermanentFailureDoesNotRetry(t *testing.T) {
	c := newTestClient(t)

	var calls atomic.Int32
	httpmock.RegisterResponder(http.MethodPost, testSearchURL,
		func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"bad bbox"}`), nil
		})

	_, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestSearchCatalogRefreshesTokenOn401(t *testing.T) {
	c := newTestClient(t)

	var searchCalls atomic.Int32
	httpmock.RegisterResponder(http.MethodPost, testSearchURL,
		func(req *http.Request) (*http.Response, error) {
			if searchCalls.Add(1) == 1 {
				return httpmock.NewStringResponse(http.StatusUnauthorized, "expired"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"features": []any{}})
		})

	_, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.NoError(t, err)
	assert.EqualValues(t, 2, searchCalls.Load(), "401 must trigger one refresh-and-retry")
}

func TestSearchCatalogRepeated401IsAuthRejection(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testSearchURL,
		httpmock.NewStringResponder(http.StatusUnauthorized, "expired"))

	_, err := c.SearchCatalog(context.Background(), testSearchRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthRejected)
}
