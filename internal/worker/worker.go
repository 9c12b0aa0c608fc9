// Package worker consumes job envelopes from the recipes queue and the
// OCR completion stream, drives the extraction pipeline, and records
// outcomes through the store's guarded transitions.
package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/client"
	"github.com/alexberardi/jarvis-recipes-server/internal/extract"
	"github.com/alexberardi/jarvis-recipes-server/internal/model"
	"github.com/alexberardi/jarvis-recipes-server/internal/queue"
	"github.com/alexberardi/jarvis-recipes-server/internal/store"
	"github.com/alexberardi/jarvis-recipes-server/internal/websocket"
)

// Worker processes recipe jobs. One instance serves every task type; the
// asynq mux dispatches by envelope job_type.
type Worker struct {
	store        *store.Store
	publisher    *queue.Publisher
	orchestrator *extract.Orchestrator
	chat         extract.ChatClient
	modelName    string
	liteModel    string
	ocrClient    *client.OCRClient
	storage      client.StorageClient
	hub          *websocket.Hub
	maxAttempts  int
	stageTTL     time.Duration
	logger       *zap.Logger
}

type Config struct {
	Store        *store.Store
	Publisher    *queue.Publisher
	Orchestrator *extract.Orchestrator
	Chat         extract.ChatClient
	ModelName    string
	LiteModel    string
	OCRClient    *client.OCRClient
	Storage      client.StorageClient
	Hub          *websocket.Hub
	MaxAttempts  int
	StageTTL     time.Duration
	Logger       *zap.Logger
}

func New(cfg Config) *Worker {
	return &Worker{
		store:        cfg.Store,
		publisher:    cfg.Publisher,
		orchestrator: cfg.Orchestrator,
		chat:         cfg.Chat,
		modelName:    cfg.ModelName,
		liteModel:    cfg.LiteModel,
		ocrClient:    cfg.OCRClient,
		storage:      cfg.Storage,
		hub:          cfg.Hub,
		maxAttempts:  cfg.MaxAttempts,
		stageTTL:     cfg.StageTTL,
		logger:       cfg.Logger,
	}
}

// RegisterHandlers wires every envelope type into the asynq mux.
func (w *Worker) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(model.EnvelopeTypeURLRequested, w.HandleURLJob)
	mux.HandleFunc(model.EnvelopeTypeIngestion, w.HandleIngestionJob)
	mux.HandleFunc(model.EnvelopeTypeImage, w.HandleImageJob)
	mux.HandleFunc(model.EnvelopeTypeOCRCompleted, w.HandleOCRCompleted)
	mux.HandleFunc(model.EnvelopeTypeMealPlanGenerate, w.HandleMealPlanGenerate)
}

// startJob decodes the envelope, loads the job, and applies MarkRunning.
// A nil job with nil error means the job is past running (canceled,
// committed, abandoned) and the envelope should be dropped silently.
func (w *Worker) startJob(ctx context.Context, t *asynq.Task) (*model.Job, error) {
	env, err := queue.DecodeEnvelope(t.Payload())
	if err != nil {
		w.logger.Error("drop undecodable envelope",
			zap.String("task_type", t.Type()), zap.Error(err))
		return nil, nil
	}

	job, err := w.store.GetJob(ctx, env.JobID)
	if err != nil {
		w.logger.Error("drop envelope for unknown job",
			zap.String("job_id", env.JobID), zap.Error(err))
		return nil, nil
	}

	applied, err := w.store.MarkRunning(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		w.logger.Info("skip job past running",
			zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
		return nil, nil
	}
	job.Status = model.JobStatusRunning
	job.Attempts++

	w.hub.BroadcastProgress(job.ID, model.JobStatusRunning, "processing")
	return job, nil
}

// completeJob records a result and notifies subscribers. A no-op result
// (job canceled mid-flight) is logged and dropped.
func (w *Worker) completeJob(ctx context.Context, job *model.Job, result *model.JobResult) {
	data, err := json.Marshal(result)
	if err != nil {
		w.failJob(ctx, job, model.ErrCodeWorkerError, "marshal result: "+err.Error(), nil, nil)
		return
	}

	applied, err := w.store.MarkComplete(ctx, job.ID, data)
	if err != nil {
		w.logger.Error("mark complete", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !applied {
		w.logger.Info("result dropped, job no longer running", zap.String("job_id", job.ID))
		return
	}

	w.hub.BroadcastComplete(job.ID, result)
	w.logger.Info("job complete",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.String("strategy", result.ParserStrategy))
}

// failJob records an error, then either requeues within the attempts
// budget or finalizes the ERROR and notifies subscribers.
func (w *Worker) failJob(ctx context.Context, job *model.Job, code, message string, nextAction *string, result json.RawMessage) {
	applied, err := w.store.MarkError(ctx, job.ID, code, message, nextAction, result)
	if err != nil {
		w.logger.Error("mark error", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !applied {
		w.logger.Info("error dropped, job no longer running", zap.String("job_id", job.ID))
		return
	}

	if w.shouldRetry(code, job.Attempts, nextAction) {
		requeued, err := w.store.Requeue(ctx, job.ID)
		if err != nil {
			w.logger.Error("requeue", zap.String("job_id", job.ID), zap.Error(err))
		} else if requeued {
			var payload any
			_ = json.Unmarshal(job.JobData, &payload)
			if err := w.publisher.PublishJob(job, payload); err != nil {
				w.logger.Error("republish", zap.String("job_id", job.ID), zap.Error(err))
			} else {
				w.logger.Info("job requeued",
					zap.String("job_id", job.ID),
					zap.String("code", code),
					zap.Int("attempts", job.Attempts))
				return
			}
		}
	}

	w.hub.BroadcastError(job.ID, code, message)
	w.logger.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.String("code", code),
		zap.String("message", message))
}

// retryableCodes are transient failures worth another attempt. Anything
// carrying a next_action is a terminal diagnosis: the client must act.
var retryableCodes = map[string]bool{
	model.ErrCodeLLMTimeout:   true,
	model.ErrCodeLLMFailed:    true,
	model.ErrCodeFetchFailed:  true,
	model.ErrCodeFetchTimeout: true,
}

func (w *Worker) shouldRetry(code string, attempts int, nextAction *string) bool {
	if nextAction != nil && *nextAction != "" {
		return false
	}
	return retryableCodes[code] && attempts < w.maxAttempts
}

// isCanceled re-reads the job for mid-pipeline cancellation checks.
func (w *Worker) isCanceled(ctx context.Context, jobID string) bool {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == model.JobStatusCanceled
}

// errorCodeFromErr extracts a leading error-code prefix ("llm_timeout:
// ...") and falls back to the given default.
func errorCodeFromErr(err error, fallback string) string {
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		prefix := msg[:idx]
		switch prefix {
		case model.ErrCodeLLMTimeout, model.ErrCodeLLMFailed,
			model.ErrCodeDraftValidationFailed, model.ErrCodeContentCorrupted:
			return prefix
		}
	}
	return fallback
}
