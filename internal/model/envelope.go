package model

import (
	"encoding/json"
	"time"
)

// Queue names. The jobs queue is self-addressed; the OCR queue is consumed
// by the external OCR worker.
const (
	QueueRecipeJobs = "jarvis.recipes.jobs"
	QueueOCRJobs    = "jarvis.ocr.jobs"
)

// EnvelopeSource identifies this service in outbound envelopes.
const EnvelopeSource = "jarvis-recipes-server"

// Envelope job types. These double as asynq task type names.
const (
	EnvelopeTypeURLRequested     = "recipe.import.url.requested"
	EnvelopeTypeIngestion        = "ingestion"
	EnvelopeTypeImage            = "image"
	EnvelopeTypeOCRRequested     = "ocr.extract_text.requested"
	EnvelopeTypeOCRCompleted     = "ocr.completed"
	EnvelopeTypeMealPlanGenerate = "meal_plan_generate"
)

// EnvelopeSchemaVersion is bumped on breaking envelope changes.
const EnvelopeSchemaVersion = 1

// Trace carries request correlation metadata through the queue.
type Trace struct {
	RequestID   string `json:"request_id,omitempty"`
	ParentJobID string `json:"parent_job_id,omitempty"`
}

// QueueEnvelope wraps one unit of queued work. WorkflowID is the stable
// correlation key: the OCR worker mints its own job_id on completion
// events but must echo the original workflow_id, so completion consumers
// look up the Job row by workflow_id, never by job_id.
type QueueEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	JobID         string          `json:"job_id"`
	WorkflowID    string          `json:"workflow_id"`
	JobType       string          `json:"job_type"`
	Source        string          `json:"source"`
	Target        string          `json:"target,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempt       int             `json:"attempt"`
	ReplyTo       string          `json:"reply_to,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Trace         Trace           `json:"trace"`
}

// OCRRequestPayload is the payload of an ocr.extract_text.requested
// envelope: an ordered list of image references.
type OCRRequestPayload struct {
	ImageRefs     []ImageRef `json:"image_refs"`
	Provider      string     `json:"provider"`
	LanguageHints []string   `json:"language_hints,omitempty"`
}

// OCRImageResult is one per-image result inside an ocr.completed payload.
// Index correlates back to the request's ImageRef order.
type OCRImageResult struct {
	Index      int      `json:"index"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// OCRCompletedPayload is the payload of an ocr.completed envelope.
type OCRCompletedPayload struct {
	Results      []OCRImageResult `json:"results"`
	ProviderUsed string           `json:"provider_used,omitempty"`
}
