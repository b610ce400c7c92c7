package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/satwatch/satwatch-go/internal/errors"
)

const (
	catalogSearchPath  = "/api/v1/catalog/1.0.0/search"
	defaultSearchLimit = 50
)

// catalogSearchRequest is the provider's STAC-style search body.
type catalogSearchRequest struct {
	Collections []string       `json:"collections"`
	Datetime    string         `json:"datetime"`
	BBox        [4]float64     `json:"bbox"`
	Limit       int            `json:"limit"`
	Filter      map[string]any `json:"filter,omitempty"`
	FilterLang  string         `json:"filter-lang,omitempty"`
}

// catalogSearchResponse mirrors the feature collection the catalog returns.
type catalogSearchResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Collection string `json:"collection"`
		Properties struct {
			Datetime   string   `json:"datetime"`
			CloudCover *float64 `json:"eo:cloud_cover"`
		} `json:"properties"`
	} `json:"features"`
}

// SearchCatalog queries the provider catalog for scenes intersecting the
// bounding box within the lookback window, with cloud cover at or below the
// threshold. Candidates come back sorted by descending acquisition time,
// ties broken by ascending cloud cover. An empty result is not an error; it
// means no acceptable imagery exists for the window.
func (c *Client) SearchCatalog(ctx context.Context, req SearchRequest) ([]SceneCandidate, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -req.LookbackDays)
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	body := catalogSearchRequest{
		Collections: []string{c.settings.Collection},
		Datetime:    from.Format(time.RFC3339) + "/" + now.Format(time.RFC3339),
		BBox:        [4]float64{req.BBox.West, req.BBox.South, req.BBox.East, req.BBox.North},
		Limit:       limit,
		Filter: map[string]any{
			"op": "<=",
			"args": []any{
				map[string]any{"property": "eo:cloud_cover"},
				req.MaxCloudCover,
			},
		},
		FilterLang: "cql2-json",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryCatalogSearch).
			Context("operation", "marshal_search_request").
			Build()
	}

	start := time.Now()
	resp, err := c.doWithRetry(ctx, "catalog_search", func(token string) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.settings.BaseURL+catalogSearchPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		return httpReq, nil
	})
	if c.metrics != nil {
		c.metrics.RecordSearchDuration(time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordSearch("error")
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Context("operation", "read_search_response").
			Build()
	}

	var parsed catalogSearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryCatalogSearch).
			Context("operation", "unmarshal_search_response").
			Build()
	}

	candidates := make([]SceneCandidate, 0, len(parsed.Features))
	for i := range parsed.Features {
		feature := &parsed.Features[i]
		acquired, err := time.Parse(time.RFC3339, feature.Properties.Datetime)
		if err != nil {
			c.logger.Warn("Skipping scene with unparseable datetime",
				"scene_id", feature.ID, "datetime", feature.Properties.Datetime)
			continue
		}
		cloudCover := float64(0)
		if feature.Properties.CloudCover != nil {
			cloudCover = *feature.Properties.CloudCover
		}
		// The filter runs server side, but a misbehaving catalog must not
		// leak unacceptable scenes into selection.
		if cloudCover > req.MaxCloudCover {
			continue
		}
		candidates = append(candidates, SceneCandidate{
			ID:              feature.ID,
			AcquisitionTime: acquired,
			CloudCover:      cloudCover,
			Collection:      feature.Collection,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].AcquisitionTime.Equal(candidates[j].AcquisitionTime) {
			return candidates[i].AcquisitionTime.After(candidates[j].AcquisitionTime)
		}
		return candidates[i].CloudCover < candidates[j].CloudCover
	})

	if c.metrics != nil {
		c.metrics.RecordSearch("success")
	}
	c.logger.Debug("Catalog search complete",
		"bbox", req.BBox.String(), "candidates", len(candidates))
	return candidates, nil
}
