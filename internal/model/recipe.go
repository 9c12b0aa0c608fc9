package model

import (
	"encoding/json"
	"time"
)

// Parser strategy names, reported in ParseResult.ParserStrategy.
const (
	StrategySchemaOrgJSONLD = "schema_org_json_ld"
	StrategyClientJSONLD    = "client_json_ld"
	StrategyClientHTML      = "client_html"
	StrategyMicrodata       = "microdata"
	StrategyHeuristic       = "heuristic"
	StrategyLLMFallback     = "llm_fallback"
)

// Error codes crossing service boundaries as strings.
const (
	ErrCodeInvalidURL             = "invalid_url"
	ErrCodeInvalidPayload         = "invalid_payload"
	ErrCodeFetchFailed            = "fetch_failed"
	ErrCodeFetchTimeout           = "fetch_timeout"
	ErrCodeEncodingError          = "encoding_error"
	ErrCodeUnsupportedContentType = "unsupported_content_type"
	ErrCodeContentCorrupted       = "content_corrupted"
	ErrCodeLLMTimeout             = "llm_timeout"
	ErrCodeLLMFailed              = "llm_failed"
	ErrCodeOCRNoText              = "ocr_no_text"
	ErrCodeOCRAllImagesFailed     = "ocr_all_images_failed"
	ErrCodeOCRUnavailable         = "ocr_service_unavailable"
	ErrCodeQualityGateFailed      = "quality_gate_failed"
	ErrCodeDraftValidationFailed  = "draft_validation_failed"
	ErrCodeWorkerError            = "worker_error"
)

// Warnings attached to ParseResult.
const (
	WarningBlockedBySite = "blocked_by_site"
	WarningEncodingError = "encoding_error"
	WarningFetchHTTPErr  = "fetch_http_error"
	WarningLLMFailed     = "llm_failed"
	WarningGibberishOCR  = "gibberish_ocr"
)

// Next-action hints for the caller.
const (
	NextActionWebviewExtract = "webview_extract"
)

// ParsedIngredient is one ingredient line split into name, display
// quantity and unit. QuantityDisplay never contains a recognized unit
// token once normalized.
type ParsedIngredient struct {
	Text            string  `json:"text"`
	QuantityDisplay *string `json:"quantity_display"`
	Unit            *string `json:"unit"`
}

// ParsedRecipe is the output of a successful extraction. Extractors only
// return a recipe when title, ingredients and steps are all non-empty.
type ParsedRecipe struct {
	Title                string             `json:"title"`
	Description          *string            `json:"description,omitempty"`
	SourceURL            *string            `json:"source_url,omitempty"`
	ImageURL             *string            `json:"image_url,omitempty"`
	Tags                 []string           `json:"tags"`
	Servings             *int               `json:"servings,omitempty"`
	EstimatedTimeMinutes *int               `json:"estimated_time_minutes,omitempty"`
	Ingredients          []ParsedIngredient `json:"ingredients"`
	Steps                []string           `json:"steps"`
	Notes                []string           `json:"notes"`
}

// ParseResult is the tagged outcome of one extraction attempt.
type ParseResult struct {
	Success          bool          `json:"success"`
	Recipe           *ParsedRecipe `json:"recipe,omitempty"`
	UsedLLM          bool          `json:"used_llm"`
	ParserStrategy   string        `json:"parser_strategy,omitempty"`
	Warnings         []string      `json:"warnings"`
	ErrorCode        string        `json:"error_code,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	NextAction       string        `json:"next_action,omitempty"`
	NextActionReason string        `json:"next_action_reason,omitempty"`
}

// PreflightResult is the outcome of the cheap pre-enqueue URL check.
type PreflightResult struct {
	OK               bool   `json:"ok"`
	StatusCode       int    `json:"status_code,omitempty"`
	ContentType      string `json:"content_type,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	NextAction       string `json:"next_action,omitempty"`
	NextActionReason string `json:"next_action_reason,omitempty"`
}

// DraftIngredient is the model-facing ingredient shape used by text
// structuring and drafts surfaced to the client.
type DraftIngredient struct {
	Name     string  `json:"name"`
	Quantity *string `json:"quantity"`
	Unit     *string `json:"unit"`
}

// RecipeDraft is the structured output of the image ingestion pipeline.
type RecipeDraft struct {
	Title            string            `json:"title"`
	Description      *string           `json:"description,omitempty"`
	Ingredients      []DraftIngredient `json:"ingredients"`
	Steps            []string          `json:"steps"`
	Tags             []string          `json:"tags"`
	PrepTimeMinutes  *int              `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes  *int              `json:"cook_time_minutes,omitempty"`
	TotalTimeMinutes *int              `json:"total_time_minutes,omitempty"`
}

// Recipe is the persisted record created when a COMPLETE job is
// committed.
type Recipe struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	Title            string             `json:"title"`
	Description      *string            `json:"description,omitempty"`
	SourceURL        *string            `json:"source_url,omitempty"`
	ImageURL         *string            `json:"image_url,omitempty"`
	Tags             []string           `json:"tags"`
	Servings         *int               `json:"servings,omitempty"`
	TotalTimeMinutes *int               `json:"total_time_minutes,omitempty"`
	Ingredients      []ParsedIngredient `json:"ingredients"`
	Steps            []string           `json:"steps"`
	Notes            []string           `json:"notes,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// StagedRecipe holds a provisional external recipe referenced by a meal
// plan selection until the user saves or it expires.
type StagedRecipe struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Payload   json.RawMessage `json:"payload"`
	RequestID *string         `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ValidateMinimums enforces the minimum-content floor for a usable draft.
func (d *RecipeDraft) ValidateMinimums() bool {
	if len(d.Title) == 0 {
		return false
	}
	if len(d.Ingredients) < 3 {
		return false
	}
	return len(d.Steps) >= 2
}
