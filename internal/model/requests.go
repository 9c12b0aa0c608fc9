package model

import "time"

// ImportURLRequest starts an asynchronous url extraction job.
type ImportURLRequest struct {
	SourceURL string `json:"source_url" validate:"required,url"`
	UseLLM    bool   `json:"use_llm"`
}

// PreflightRequest checks a URL before any job is enqueued.
type PreflightRequest struct {
	SourceURL string `json:"source_url" validate:"required,url"`
}

// IngestRequest submits webview-extracted content, a server-fetched URL,
// or uploaded images.
type IngestRequest struct {
	SourceType   string   `json:"source_type" validate:"required,oneof=server_fetch client_webview image_upload"`
	SourceURL    string   `json:"source_url,omitempty" validate:"omitempty,url"`
	JSONLDBlocks []string `json:"jsonld_blocks,omitempty"`
	HTMLSnippet  string   `json:"html_snippet,omitempty"`
	Images       []string `json:"images,omitempty" validate:"omitempty,max=8,dive,base64"`
	UseLLM       bool     `json:"use_llm"`
	TierMax      int      `json:"tier_max,omitempty" validate:"omitempty,min=1,max=3"`
}

// JobSubmitResponse acknowledges an accepted job.
type JobSubmitResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatusResponse reports lifecycle state for polling clients.
type JobStatusResponse struct {
	JobID        string     `json:"job_id"`
	Type         JobType    `json:"job_type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	NextAction   *string    `json:"next_action,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobCancelResponse acknowledges a cancellation.
type JobCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
}

// JobCommitResponse acknowledges a COMPLETE job being accepted as a
// permanent record.
type JobCommitResponse struct {
	Success  bool      `json:"success"`
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	RecipeID string    `json:"recipe_id,omitempty"`
}

// MealType is a plan slot category.
type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
	MealTypeDessert   MealType = "dessert"
)

var ValidMealTypes = []MealType{
	MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack, MealTypeDessert,
}

// MealSlotRequest describes one slot to fill.
type MealSlotRequest struct {
	MealType       MealType `json:"meal_type" validate:"required,oneof=breakfast lunch dinner snack dessert"`
	Note           string   `json:"note,omitempty"`
	TagsAny        []string `json:"tags_any,omitempty"`
	ExcludeTerms   []string `json:"exclude_terms,omitempty" validate:"omitempty,max=5"`
	MaxTimeMinutes *int     `json:"max_time_minutes,omitempty"`
}

// MealPlanDayRequest is one day of slots.
type MealPlanDayRequest struct {
	Date  string            `json:"date" validate:"required"`
	Slots []MealSlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// MealPlanGenerateRequest starts a meal_plan_generate job.
type MealPlanGenerateRequest struct {
	Days            []MealPlanDayRequest     `json:"days" validate:"required,min=1,max=14,dive"`
	ExtraCandidates []MealPlanCandidate      `json:"extra_candidates,omitempty" validate:"omitempty,max=50,dive"`
	Options         *MealPlanGenerateOptions `json:"options,omitempty"`
}

// MealPlanGenerateOptions tunes selection behavior.
type MealPlanGenerateOptions struct {
	AvoidRepeats bool `json:"avoid_repeats"`
}

// MealPlanCandidate is a recipe summary offered to the selector.
type MealPlanCandidate struct {
	ID               string   `json:"id" validate:"required"`
	Source           string   `json:"source,omitempty"`
	Title            string   `json:"title" validate:"required"`
	Description      string   `json:"description,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	TotalTimeMinutes int      `json:"total_time_minutes,omitempty"`
}

// MealPlanSelection is the winning pick for a slot.
type MealPlanSelection struct {
	RecipeID   string  `json:"recipe_id"`
	Source     string  `json:"source,omitempty"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	StagedID   string  `json:"staged_id,omitempty"`
}

// MealPlanAlternative is a non-winning ranked candidate.
type MealPlanAlternative struct {
	RecipeID string `json:"recipe_id"`
	Title    string `json:"title"`
	Reason   string `json:"reason,omitempty"`
}

// MealSlotResult is the outcome for one slot.
type MealSlotResult struct {
	MealType     MealType              `json:"meal_type"`
	Selection    *MealPlanSelection    `json:"selection,omitempty"`
	Alternatives []MealPlanAlternative `json:"alternatives,omitempty"`
	ErrorCode    string                `json:"error_code,omitempty"`
}

// MealPlanDayResult is one day of slot outcomes.
type MealPlanDayResult struct {
	Date  string           `json:"date"`
	Slots []MealSlotResult `json:"slots"`
}

// MealPlanResult is the result_json shape for meal_plan_generate jobs.
type MealPlanResult struct {
	Days []MealPlanDayResult `json:"days"`
}
