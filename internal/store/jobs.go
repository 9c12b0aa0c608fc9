package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// CreateJob inserts a new PENDING job. WorkflowID defaults to the job ID
// when the caller leaves it empty.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	if job.WorkflowID == "" {
		job.WorkflowID = job.ID
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = model.JobStatusPending

	_, err := s.execWithRetry(ctx, `
		INSERT INTO jobs (id, workflow_id, user_id, job_type, status, job_data, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		job.ID, job.WorkflowID, job.UserID, string(job.Type), string(job.Status),
		nullableJSON(job.JobData), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, workflow_id, user_id, job_type, status, job_data, result_json,
	error_code, error_message, next_action, attempts,
	created_at, started_at, completed_at, committed_at, abandoned_at, canceled_at`

// GetJob reads one job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", jobID)
	return scanJob(row)
}

// GetJobByWorkflowID reads one job by its correlation key. Used for
// completion events from services that mint their own job IDs.
func (s *Store) GetJobByWorkflowID(ctx context.Context, workflowID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE workflow_id = ?", workflowID)
	return scanJob(row)
}

func scanJob(row *sql.Row) (*model.Job, error) {
	var (
		job       model.Job
		jobType   string
		status    string
		jobData   sql.NullString
		result    sql.NullString
		errCode   sql.NullString
		errMsg    sql.NullString
		next      sql.NullString
		started   sql.NullTime
		completed sql.NullTime
		committed sql.NullTime
		abandoned sql.NullTime
		canceled  sql.NullTime
	)
	err := row.Scan(&job.ID, &job.WorkflowID, &job.UserID, &jobType, &status,
		&jobData, &result, &errCode, &errMsg, &next, &job.Attempts,
		&job.CreatedAt, &started, &completed, &committed, &abandoned, &canceled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Type = model.JobType(jobType)
	job.Status = model.JobStatus(status)
	if jobData.Valid {
		job.JobData = json.RawMessage(jobData.String)
	}
	if result.Valid {
		job.ResultJSON = json.RawMessage(result.String)
	}
	job.ErrorCode = nullStr(errCode)
	job.ErrorMessage = nullStr(errMsg)
	job.NextAction = nullStr(next)
	job.StartedAt = nullTime(started)
	job.CompletedAt = nullTime(completed)
	job.CommittedAt = nullTime(committed)
	job.AbandonedAt = nullTime(abandoned)
	job.CanceledAt = nullTime(canceled)
	return &job, nil
}

// MarkRunning moves PENDING|RUNNING to RUNNING, incrementing attempts and
// setting started_at. A no-op from any terminal state; returns whether
// the transition applied.
func (s *Store) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs
		SET status = ?, attempts = attempts + 1, started_at = ?,
		    error_code = NULL, error_message = NULL
		WHERE id = ? AND status IN (?, ?)`,
		string(model.JobStatusRunning), time.Now().UTC(), jobID,
		string(model.JobStatusPending), string(model.JobStatusRunning))
	if err != nil {
		return false, fmt.Errorf("mark running: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkComplete writes the normalized result and moves to COMPLETE. A
// no-op when the job was canceled, committed or abandoned, so a late
// worker result never overwrites a user's cancellation.
func (s *Store) MarkComplete(ctx context.Context, jobID string, result json.RawMessage) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs
		SET status = ?, result_json = ?, completed_at = ?,
		    error_code = NULL, error_message = NULL
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(model.JobStatusComplete), nullableJSON(result), time.Now().UTC(), jobID,
		string(model.JobStatusCanceled), string(model.JobStatusCommitted), string(model.JobStatusAbandoned))
	if err != nil {
		return false, fmt.Errorf("mark complete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkError moves to ERROR with a stable error code. Same terminal-state
// guard as MarkComplete. An optional result payload (next-action hints,
// partial diagnostics) may accompany the error.
func (s *Store) MarkError(ctx context.Context, jobID, code, message string, nextAction *string, result json.RawMessage) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs
		SET status = ?, error_code = ?, error_message = ?, next_action = ?,
		    result_json = COALESCE(?, result_json), completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(model.JobStatusError), code, message, nextAction,
		nullableJSON(result), time.Now().UTC(), jobID,
		string(model.JobStatusCanceled), string(model.JobStatusCommitted), string(model.JobStatusAbandoned))
	if err != nil {
		return false, fmt.Errorf("mark error: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCommitted accepts a COMPLETE result as a permanent record. Any
// other source state is rejected.
func (s *Store) MarkCommitted(ctx context.Context, jobID string) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs SET status = ?, committed_at = ?
		WHERE id = ? AND status = ?`,
		string(model.JobStatusCommitted), time.Now().UTC(), jobID,
		string(model.JobStatusComplete))
	if err != nil {
		return false, fmt.Errorf("mark committed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCanceled cancels a PENDING or RUNNING job. A COMPLETE job is also
// cancelable: a completed-but-unreviewed result can still be dismissed.
// ERROR, COMMITTED, ABANDONED and already-CANCELED reject cancellation.
func (s *Store) MarkCanceled(ctx context.Context, jobID string) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs SET status = ?, canceled_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		string(model.JobStatusCanceled), time.Now().UTC(), jobID,
		string(model.JobStatusPending), string(model.JobStatusRunning), string(model.JobStatusComplete))
	if err != nil {
		return false, fmt.Errorf("mark canceled: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Requeue resets an ERROR job to PENDING preserving job_data, for the
// caller-driven retry policy.
func (s *Store) Requeue(ctx context.Context, jobID string) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs
		SET status = ?, completed_at = NULL
		WHERE id = ? AND status = ?`,
		string(model.JobStatusPending), jobID, string(model.JobStatusError))
	if err != nil {
		return false, fmt.Errorf("requeue job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ResetPending puts a RUNNING job back to PENDING, used when a collaborator
// is temporarily unavailable and the job should be retried later.
func (s *Store) ResetPending(ctx context.Context, jobID, code, message string) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs SET status = ?, error_code = ?, error_message = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(model.JobStatusPending), code, message, jobID,
		string(model.JobStatusRunning), string(model.JobStatusError))
	if err != nil {
		return false, fmt.Errorf("reset pending: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AbandonStale sweeps COMPLETE jobs whose completed_at is older than
// cutoff into ABANDONED, modeling results the user never claimed.
func (s *Store) AbandonStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs SET status = ?, abandoned_at = ?
		WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		string(model.JobStatusAbandoned), time.Now().UTC(),
		string(model.JobStatusComplete), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("abandon stale: %w", err)
	}
	return res.RowsAffected()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
