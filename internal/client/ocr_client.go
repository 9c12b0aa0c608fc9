package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alexberardi/jarvis-recipes-server/internal/config"
	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// OCRClient calls the OCR service's synchronous batch endpoint. The queue
// path in the worker is preferred for large jobs; this client serves
// direct image jobs and health checks.
type OCRClient struct {
	http       *resty.Client
	serviceURL string
}

// batchOCRRequest is the request body for POST /v1/ocr/batch.
type batchOCRRequest struct {
	Images        []batchOCRImage `json:"images"`
	LanguageHints []string        `json:"language_hints,omitempty"`
}

type batchOCRImage struct {
	Index int    `json:"index"`
	Data  string `json:"data"` // base64
}

// batchOCRResponse mirrors the service's per-image result list. The
// service reports confidence on a 0-1 scale.
type batchOCRResponse struct {
	Results []struct {
		Index      int      `json:"index"`
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence,omitempty"`
		Error      string   `json:"error,omitempty"`
	} `json:"results"`
	Provider string `json:"provider,omitempty"`
}

// NewOCRClient creates an OCR service client from config.
func NewOCRClient(cfg *config.OCRConfig) *OCRClient {
	http := resty.New().
		SetTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetHeader("Content-Type", "application/json")
	return &OCRClient{http: http, serviceURL: cfg.ServiceURL}
}

// ExtractBatch runs OCR over a batch of base64 images and returns results
// in index order with confidence rescaled to 0-100.
func (c *OCRClient) ExtractBatch(ctx context.Context, images []string, languageHints []string) ([]model.OCRImageResult, string, error) {
	if len(images) == 0 {
		return nil, "", fmt.Errorf("no images to process")
	}
	if len(images) > model.MaxBatchOCRImages {
		return nil, "", fmt.Errorf("batch too large: %d images (max %d)", len(images), model.MaxBatchOCRImages)
	}

	req := batchOCRRequest{LanguageHints: languageHints}
	for i, data := range images {
		req.Images = append(req.Images, batchOCRImage{Index: i, Data: data})
	}

	var body batchOCRResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post(c.serviceURL + "/v1/ocr/batch")
	if err != nil {
		return nil, "", fmt.Errorf("ocr batch request: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("ocr service error (status %d): %s", resp.StatusCode(), resp.String())
	}

	results := make([]model.OCRImageResult, 0, len(body.Results))
	for _, r := range body.Results {
		out := model.OCRImageResult{Index: r.Index, Text: r.Text, Error: r.Error}
		if r.Confidence != nil {
			scaled := *r.Confidence * 100
			out.Confidence = &scaled
		}
		results = append(results, out)
	}
	return results, body.Provider, nil
}

// IsConfigured returns true if the client has valid configuration.
func (c *OCRClient) IsConfigured() bool {
	return c.serviceURL != ""
}
