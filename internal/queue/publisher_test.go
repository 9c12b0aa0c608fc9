package queue

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(model.EnvelopeTypeURLRequested, "job-1", "", 1,
		model.URLJobData{SourceURL: "https://example.com/r"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.SchemaVersion != model.EnvelopeSchemaVersion {
		t.Errorf("schema version = %d", env.SchemaVersion)
	}
	if env.WorkflowID != "job-1" {
		t.Errorf("workflow id should default to job id, got %q", env.WorkflowID)
	}
	if env.Source != model.EnvelopeSource {
		t.Errorf("source = %q", env.Source)
	}
	if env.Attempt != 1 {
		t.Errorf("attempt = %d", env.Attempt)
	}
	if env.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	var payload model.URLJobData
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.SourceURL != "https://example.com/r" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestNewEnvelopeExplicitWorkflowID(t *testing.T) {
	env, err := NewEnvelope(model.EnvelopeTypeOCRRequested, "job-2", "wf-9", 1, nil)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.WorkflowID != "wf-9" {
		t.Errorf("workflow id = %q, want wf-9", env.WorkflowID)
	}
	if env.Payload != nil {
		t.Errorf("payload = %s, want empty", env.Payload)
	}
}

func TestDecodeEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(model.EnvelopeTypeOCRCompleted, "ocr-job-7", "wf-7", 1,
		model.OCRCompletedPayload{Results: []model.OCRImageResult{{Index: 0, Text: "2 cups flour"}}})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if decoded.JobType != model.EnvelopeTypeOCRCompleted {
		t.Errorf("job type = %q", decoded.JobType)
	}
	if decoded.WorkflowID != "wf-7" {
		t.Errorf("workflow id = %q", decoded.WorkflowID)
	}

	var payload model.OCRCompletedPayload
	if err := json.Unmarshal(decoded.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].Text != "2 cups flour" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestDecodeEnvelopeRejections(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "wrong schema version",
			data:    `{"schema_version":2,"workflow_id":"wf","job_type":"image"}`,
			wantErr: "schema_version",
		},
		{
			name:    "missing workflow id",
			data:    `{"schema_version":1,"job_type":"image"}`,
			wantErr: "workflow_id",
		},
		{
			name:    "missing job type",
			data:    `{"schema_version":1,"workflow_id":"wf"}`,
			wantErr: "job_type",
		},
		{
			name:    "not json",
			data:    `garbage`,
			wantErr: "unmarshal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestTaskTypeForJob(t *testing.T) {
	tests := map[model.JobType]string{
		model.JobTypeURL:              model.EnvelopeTypeURLRequested,
		model.JobTypeIngestion:        model.EnvelopeTypeIngestion,
		model.JobTypeImage:            model.EnvelopeTypeImage,
		model.JobTypeMealPlanGenerate: model.EnvelopeTypeMealPlanGenerate,
	}
	for jobType, want := range tests {
		if got := taskTypeForJob(jobType); got != want {
			t.Errorf("taskTypeForJob(%s) = %q, want %q", jobType, got, want)
		}
	}
}
