package model

import (
	"encoding/json"
	"time"
)

// Ingestion status
type IngestionStatus string

const (
	IngestionStatusPending   IngestionStatus = "PENDING"
	IngestionStatusRunning   IngestionStatus = "RUNNING"
	IngestionStatusSucceeded IngestionStatus = "SUCCEEDED"
	IngestionStatusFailed    IngestionStatus = "FAILED"
)

// Source types accepted by the ingestion endpoint.
const (
	SourceServerFetch   = "server_fetch"
	SourceClientWebview = "client_webview"
	SourceImageUpload   = "image_upload"
)

// Input size caps.
const (
	MaxJSONLDBlocks   = 10
	MaxJSONLDBytes    = 200_000
	MaxHTMLBytes      = 400_000
	MaxImages         = 8
	MaxImageBytes     = 8_000_000
	MaxBatchOCRImages = 100
)

// Ingestion is the durable record for one image ingestion. Created before
// its Job and mutated only by the worker afterwards.
type Ingestion struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	ImageKeys    []string        `json:"image_keys"`
	Status       IngestionStatus `json:"status"`
	TierMax      int             `json:"tier_max"`
	PipelineJSON json.RawMessage `json:"pipeline_json,omitempty"`
	RecipeID     *string         `json:"recipe_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ImageRef references one image inside a batch OCR request. Index is the
// correlation key for re-ordering per-image results.
type ImageRef struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Index int    `json:"index"`
}

// IngestionInput is the normalized submit payload handed to the
// extraction orchestrator.
type IngestionInput struct {
	SourceType   string   `json:"source_type"`
	SourceURL    string   `json:"source_url,omitempty"`
	JSONLDBlocks []string `json:"jsonld_blocks,omitempty"`
	HTMLSnippet  string   `json:"html_snippet,omitempty"`
	Images       []string `json:"images,omitempty"` // base64
	UseLLM       bool     `json:"use_llm"`
}
