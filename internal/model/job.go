package model

import (
	"encoding/json"
	"time"
)

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusComplete  JobStatus = "COMPLETE"
	JobStatusError     JobStatus = "ERROR"
	JobStatusCanceled  JobStatus = "CANCELED"
	JobStatusCommitted JobStatus = "COMMITTED"
	JobStatusAbandoned JobStatus = "ABANDONED"
)

// Job type
type JobType string

const (
	JobTypeURL              JobType = "url"
	JobTypeIngestion        JobType = "ingestion"
	JobTypeImage            JobType = "image"
	JobTypeMealPlanGenerate JobType = "meal_plan_generate"
)

var ValidJobTypes = []JobType{
	JobTypeURL, JobTypeIngestion, JobTypeImage, JobTypeMealPlanGenerate,
}

// Job is the durable record for one unit of long-running work. Lifecycle
// is owned exclusively by the store's guarded transitions; attempts only
// increments on the transition into RUNNING.
type Job struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	UserID       string          `json:"user_id"`
	Type         JobType         `json:"job_type"`
	Status       JobStatus       `json:"status"`
	JobData      json.RawMessage `json:"job_data,omitempty"`
	ResultJSON   json.RawMessage `json:"result_json,omitempty"`
	ErrorCode    *string         `json:"error_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	NextAction   *string         `json:"next_action,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CommittedAt  *time.Time      `json:"committed_at,omitempty"`
	AbandonedAt  *time.Time      `json:"abandoned_at,omitempty"`
	CanceledAt   *time.Time      `json:"canceled_at,omitempty"`
}

// Terminal reports whether no further worker-side transitions apply.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCanceled, JobStatusCommitted, JobStatusAbandoned, JobStatusError:
		return true
	}
	return false
}

// URLJobData is the job_data payload for url jobs.
type URLJobData struct {
	SourceURL string `json:"source_url"`
	UseLLM    bool   `json:"use_llm"`
}

// IngestionJobData is the job_data payload for ingestion/image jobs.
type IngestionJobData struct {
	IngestionID string `json:"ingestion_id"`
}

// JobResult is the result_json shape for extraction jobs.
type JobResult struct {
	Recipe         *ParsedRecipe          `json:"recipe,omitempty"`
	RecipeDraft    *RecipeDraft           `json:"recipe_draft,omitempty"`
	ParserStrategy string                 `json:"parser_strategy,omitempty"`
	UsedLLM        bool                   `json:"used_llm"`
	Warnings       []string               `json:"warnings,omitempty"`
	Pipeline       map[string]interface{} `json:"pipeline,omitempty"`
}
