package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/satwatch/satwatch-go/internal/errors"
)

const processPath = "/api/v1/process"

// evalscripts maps the configured band-combination script identifier to the
// script sent to the processing endpoint.
var evalscripts = map[string]string{
	"true-color": `//VERSION=3
function setup() {
  return { input: ["B02", "B03", "B04"], output: { bands: 3 } };
}
function evaluatePixel(sample) {
  return [2.5 * sample.B04, 2.5 * sample.B03, 2.5 * sample.B02];
}`,
	"false-color": `//VERSION=3
function setup() {
  return { input: ["B03", "B04", "B08"], output: { bands: 3 } };
}
function evaluatePixel(sample) {
  return [2.5 * sample.B08, 2.5 * sample.B04, 2.5 * sample.B03];
}`,
}

// formatContentTypes maps output formats to the MIME types requested from
// the processing endpoint.
var formatContentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
}

// magicNumbers holds the leading bytes expected per format. TIFF has two
// valid byte orders.
var magicNumbers = map[string][][]byte{
	"png":  {{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	"jpeg": {{0xFF, 0xD8, 0xFF}},
	"tiff": {{'I', 'I', 0x2A, 0x00}, {'M', 'M', 0x00, 0x2A}},
}

// ValidateImageBytes performs the cheap sanity check on fetched raster
// bytes: non-zero length and the correct magic number for the format.
func ValidateImageBytes(data []byte, format string) error {
	if len(data) == 0 {
		return errors.Newf("empty image payload").
			Component("provider").
			Category(errors.CategoryImageValidation).
			Build()
	}
	magics, known := magicNumbers[format]
	if !known {
		return errors.Newf("unknown image format %q", format).
			Component("provider").
			Category(errors.CategoryImageValidation).
			Build()
	}
	for _, magic := range magics {
		if bytes.HasPrefix(data, magic) {
			return nil
		}
	}
	return errors.Newf("image bytes do not match %s signature", format).
		Component("provider").
		Category(errors.CategoryImageValidation).
		Context("leading_bytes", len(data)).
		Build()
}

// processRequest is the body sent to the provider's processing endpoint.
type processRequest struct {
	Input struct {
		Bounds struct {
			BBox [4]float64 `json:"bbox"`
		} `json:"bounds"`
		Data []processDataSpec `json:"data"`
	} `json:"input"`
	Output struct {
		Width     int               `json:"width"`
		Height    int               `json:"height"`
		Responses []processResponse `json:"responses"`
	} `json:"output"`
	Evalscript string `json:"evalscript"`
}

type processDataSpec struct {
	Type       string `json:"type"`
	DataFilter struct {
		TimeRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timeRange"`
		MaxCloudCoverage float64 `json:"maxCloudCoverage"`
	} `json:"dataFilter"`
}

type processResponse struct {
	Identifier string `json:"identifier"`
	Format     struct {
		Type string `json:"type"`
	} `json:"format"`
}

// FetchImage requests a rendered raster for the given bounds and time window
// and returns the raw bytes with their content type. Fetched bytes that fail
// validation are refetched once; a second failure yields ErrInvalidImageData
// so the caller never overwrites a cached image with garbage.
func (c *Client) FetchImage(ctx context.Context, req FetchRequest) (ImageData, error) {
	payload, err := c.buildProcessPayload(req)
	if err != nil {
		return ImageData{}, err
	}

	img, err := c.fetchOnce(ctx, payload)
	if err != nil {
		return ImageData{}, err
	}

	if err := ValidateImageBytes(img.Bytes, req.Format); err != nil {
		c.logger.Warn("Fetched image failed validation, retrying once",
			"bbox", req.BBox.String(), "error", err)
		if c.metrics != nil {
			c.metrics.RecordFetch("invalid")
		}
		img, fetchErr := c.fetchOnce(ctx, payload)
		if fetchErr != nil {
			return ImageData{}, fetchErr
		}
		if err := ValidateImageBytes(img.Bytes, req.Format); err != nil {
			return ImageData{}, errors.New(errors.Join(ErrInvalidImageData, err)).
				Component("provider").
				Category(errors.CategoryImageValidation).
				Context("bbox", req.BBox.String()).
				Build()
		}
		return img, nil
	}

	return img, nil
}

// buildProcessPayload assembles the processing endpoint request body.
func (c *Client) buildProcessPayload(req FetchRequest) ([]byte, error) {
	contentType, ok := formatContentTypes[req.Format]
	if !ok {
		return nil, errors.Newf("unsupported output format %q", req.Format).
			Component("provider").
			Category(errors.CategoryValidation).
			Build()
	}

	script, ok := evalscripts[req.Script]
	if !ok {
		script = evalscripts["true-color"]
	}

	var body processRequest
	body.Input.Bounds.BBox = [4]float64{req.BBox.West, req.BBox.South, req.BBox.East, req.BBox.North}

	var data processDataSpec
	data.Type = c.settings.Collection
	data.DataFilter.TimeRange.From = req.From.UTC().Format(time.RFC3339)
	data.DataFilter.TimeRange.To = req.To.UTC().Format(time.RFC3339)
	data.DataFilter.MaxCloudCoverage = req.MaxCloudCover
	body.Input.Data = []processDataSpec{data}

	body.Output.Width = req.Width
	body.Output.Height = req.Height
	response := processResponse{Identifier: "default"}
	response.Format.Type = contentType
	body.Output.Responses = []processResponse{response}
	body.Evalscript = script

	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, errors.New(err).
			Component("provider").
			Category(errors.CategoryImageFetch).
			Context("operation", "marshal_process_request").
			Build()
	}
	return payload, nil
}

// fetchOnce performs one processing request through the retry policy.
func (c *Client) fetchOnce(ctx context.Context, payload []byte) (ImageData, error) {
	start := time.Now()
	resp, err := c.doWithRetry(ctx, "image_fetch", func(token string) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.settings.BaseURL+processPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	})
	if c.metrics != nil {
		c.metrics.RecordFetchDuration(time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFetch("error")
		}
		return ImageData{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ImageData{}, errors.New(err).
			Component("provider").
			Category(errors.CategoryNetwork).
			Context("operation", "read_image_response").
			Build()
	}

	if c.metrics != nil {
		c.metrics.RecordFetch("success")
		c.metrics.ObserveImageSize(float64(len(raw)))
	}
	return ImageData{
		Bytes:       raw,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
