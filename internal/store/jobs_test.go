package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestJob(t *testing.T, s *Store, jobType model.JobType) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:      uuid.NewString(),
		UserID:  "user-1",
		Type:    jobType,
		JobData: json.RawMessage(`{"source_url":"https://example.com/r","use_llm":false}`),
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func mustGetJob(t *testing.T, s *Store, id string) *model.Job {
	t.Helper()
	job, err := s.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	job := newTestJob(t, s, model.JobTypeURL)

	got := mustGetJob(t, s, job.ID)
	if got.Status != model.JobStatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if got.WorkflowID != job.ID {
		t.Errorf("workflow id should default to job id, got %q", got.WorkflowID)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", got.Attempts)
	}
	if got.UserID != "user-1" || got.Type != model.JobTypeURL {
		t.Errorf("job = %+v", got)
	}
	if len(got.JobData) == 0 {
		t.Error("job data not persisted")
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetJob(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetJobByWorkflowID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := &model.Job{
		ID:         uuid.NewString(),
		WorkflowID: "wf-distinct",
		UserID:     "user-1",
		Type:       model.JobTypeIngestion,
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJobByWorkflowID(ctx, "wf-distinct")
	if err != nil {
		t.Fatalf("GetJobByWorkflowID: %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("id = %q, want %q", got.ID, job.ID)
	}

	if _, err := s.GetJobByWorkflowID(ctx, "wf-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestJobHappyPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newTestJob(t, s, model.JobTypeURL)

	applied, err := s.MarkRunning(ctx, job.ID)
	if err != nil || !applied {
		t.Fatalf("MarkRunning: applied=%v err=%v", applied, err)
	}
	running := mustGetJob(t, s, job.ID)
	if running.Status != model.JobStatusRunning || running.Attempts != 1 {
		t.Errorf("after MarkRunning: status=%s attempts=%d", running.Status, running.Attempts)
	}
	if running.StartedAt == nil {
		t.Error("started_at not set")
	}

	result := json.RawMessage(`{"used_llm":false,"parser_strategy":"schema_org_json_ld"}`)
	applied, err = s.MarkComplete(ctx, job.ID, result)
	if err != nil || !applied {
		t.Fatalf("MarkComplete: applied=%v err=%v", applied, err)
	}
	complete := mustGetJob(t, s, job.ID)
	if complete.Status != model.JobStatusComplete {
		t.Errorf("status = %s, want COMPLETE", complete.Status)
	}
	if complete.CompletedAt == nil || len(complete.ResultJSON) == 0 {
		t.Errorf("completed job missing result or timestamp: %+v", complete)
	}

	applied, err = s.MarkCommitted(ctx, job.ID)
	if err != nil || !applied {
		t.Fatalf("MarkCommitted: applied=%v err=%v", applied, err)
	}
	committed := mustGetJob(t, s, job.ID)
	if committed.Status != model.JobStatusCommitted || committed.CommittedAt == nil {
		t.Errorf("committed job = %+v", committed)
	}
}

func TestMarkRunningIdempotentWhileRunning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newTestJob(t, s, model.JobTypeURL)

	for i := 0; i < 2; i++ {
		applied, err := s.MarkRunning(ctx, job.ID)
		if err != nil || !applied {
			t.Fatalf("MarkRunning #%d: applied=%v err=%v", i+1, applied, err)
		}
	}
	got := mustGetJob(t, s, job.ID)
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
}

func TestCanceledJobRejectsLateResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newTestJob(t, s, model.JobTypeURL)

	if applied, err := s.MarkRunning(ctx, job.ID); err != nil || !applied {
		t.Fatalf("MarkRunning: %v", err)
	}
	if applied, err := s.MarkCanceled(ctx, job.ID); err != nil || !applied {
		t.Fatalf("MarkCanceled: %v", err)
	}

	// A worker that lost the race must not resurrect the job.
	if applied, _ := s.MarkComplete(ctx, job.ID, json.RawMessage(`{}`)); applied {
		t.Error("MarkComplete applied to a canceled job")
	}
	if applied, _ := s.MarkError(ctx, job.ID, "worker_error", "late failure", nil, nil); applied {
		t.Error("MarkError applied to a canceled job")
	}
	if applied, _ := s.MarkRunning(ctx, job.ID); applied {
		t.Error("MarkRunning applied to a canceled job")
	}

	got := mustGetJob(t, s, job.ID)
	if got.Status != model.JobStatusCanceled || got.CanceledAt == nil {
		t.Errorf("job = %+v, want CANCELED preserved", got)
	}
}

func TestMarkCommittedOnlyFromComplete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newTestJob(t, s, model.JobTypeURL)
	if applied, _ := s.MarkCommitted(ctx, job.ID); applied {
		t.Error("commit applied to a PENDING job")
	}

	if _, err := s.MarkRunning(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if applied, _ := s.MarkCommitted(ctx, job.ID); applied {
		t.Error("commit applied to a RUNNING job")
	}

	if _, err := s.MarkError(ctx, job.ID, "fetch_failed", "status 500", nil, nil); err != nil {
		t.Fatal(err)
	}
	if applied, _ := s.MarkCommitted(ctx, job.ID); applied {
		t.Error("commit applied to an ERROR job")
	}
}

func TestMarkCanceledStates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t.Run("complete job is cancelable", func(t *testing.T) {
		job := newTestJob(t, s, model.JobTypeURL)
		_, _ = s.MarkRunning(ctx, job.ID)
		_, _ = s.MarkComplete(ctx, job.ID, json.RawMessage(`{}`))
		applied, err := s.MarkCanceled(ctx, job.ID)
		if err != nil || !applied {
			t.Errorf("applied=%v err=%v", applied, err)
		}
	})

	t.Run("error job rejects cancel", func(t *testing.T) {
		job := newTestJob(t, s, model.JobTypeURL)
		_, _ = s.MarkRunning(ctx, job.ID)
		_, _ = s.MarkError(ctx, job.ID, "fetch_failed", "boom", nil, nil)
		if applied, _ := s.MarkCanceled(ctx, job.ID); applied {
			t.Error("cancel applied to an ERROR job")
		}
	})

	t.Run("committed job rejects cancel", func(t *testing.T) {
		job := newTestJob(t, s, model.JobTypeURL)
		_, _ = s.MarkRunning(ctx, job.ID)
		_, _ = s.MarkComplete(ctx, job.ID, json.RawMessage(`{}`))
		_, _ = s.MarkCommitted(ctx, job.ID)
		if applied, _ := s.MarkCanceled(ctx, job.ID); applied {
			t.Error("cancel applied to a COMMITTED job")
		}
	})
}

func TestMarkErrorRecordsDiagnostics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newTestJob(t, s, model.JobTypeURL)
	_, _ = s.MarkRunning(ctx, job.ID)

	next := "webview_extract"
	diag := json.RawMessage(`{"warnings":["blocked_by_site"]}`)
	applied, err := s.MarkError(ctx, job.ID, "fetch_failed", "site returned status 403", &next, diag)
	if err != nil || !applied {
		t.Fatalf("MarkError: applied=%v err=%v", applied, err)
	}

	got := mustGetJob(t, s, job.ID)
	if got.Status != model.JobStatusError {
		t.Errorf("status = %s", got.Status)
	}
	if got.ErrorCode == nil || *got.ErrorCode != "fetch_failed" {
		t.Errorf("error code = %v", got.ErrorCode)
	}
	if got.NextAction == nil || *got.NextAction != "webview_extract" {
		t.Errorf("next action = %v", got.NextAction)
	}
	if len(got.ResultJSON) == 0 {
		t.Error("diagnostic payload not stored")
	}
}

func TestRequeue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newTestJob(t, s, model.JobTypeURL)

	// Only ERROR jobs can be requeued.
	if applied, _ := s.Requeue(ctx, job.ID); applied {
		t.Error("requeue applied to a PENDING job")
	}

	_, _ = s.MarkRunning(ctx, job.ID)
	_, _ = s.MarkError(ctx, job.ID, "llm_timeout", "model call timed out", nil, nil)

	applied, err := s.Requeue(ctx, job.ID)
	if err != nil || !applied {
		t.Fatalf("Requeue: applied=%v err=%v", applied, err)
	}

	got := mustGetJob(t, s, job.ID)
	if got.Status != model.JobStatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, requeue must not reset the counter", got.Attempts)
	}
	if got.CompletedAt != nil {
		t.Error("completed_at should be cleared on requeue")
	}

	// The next run increments attempts again.
	_, _ = s.MarkRunning(ctx, job.ID)
	if got := mustGetJob(t, s, job.ID); got.Attempts != 2 {
		t.Errorf("attempts after rerun = %d, want 2", got.Attempts)
	}
}

func TestAbandonStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stale := newTestJob(t, s, model.JobTypeURL)
	_, _ = s.MarkRunning(ctx, stale.ID)
	_, _ = s.MarkComplete(ctx, stale.ID, json.RawMessage(`{}`))

	fresh := newTestJob(t, s, model.JobTypeURL)
	_, _ = s.MarkRunning(ctx, fresh.ID)

	// Cutoff in the future: the completed job is older than it.
	n, err := s.AbandonStale(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("AbandonStale: %v", err)
	}
	if n != 1 {
		t.Errorf("abandoned = %d, want 1", n)
	}

	if got := mustGetJob(t, s, stale.ID); got.Status != model.JobStatusAbandoned || got.AbandonedAt == nil {
		t.Errorf("stale job = %+v", got)
	}
	if got := mustGetJob(t, s, fresh.ID); got.Status != model.JobStatusRunning {
		t.Errorf("running job swept: %+v", got)
	}

	// Past cutoff catches nothing new.
	n, err = s.AbandonStale(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Errorf("second sweep: n=%d err=%v", n, err)
	}
}

func TestResetPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newTestJob(t, s, model.JobTypeURL)
	_, _ = s.MarkRunning(ctx, job.ID)

	applied, err := s.ResetPending(ctx, job.ID, "ocr_service_unavailable", "collaborator offline")
	if err != nil || !applied {
		t.Fatalf("ResetPending: applied=%v err=%v", applied, err)
	}
	got := mustGetJob(t, s, job.ID)
	if got.Status != model.JobStatusPending {
		t.Errorf("status = %s", got.Status)
	}
	if got.ErrorCode == nil || *got.ErrorCode != "ocr_service_unavailable" {
		t.Errorf("error code = %v", got.ErrorCode)
	}
}
