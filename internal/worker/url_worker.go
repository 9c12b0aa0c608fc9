package worker

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// HandleURLJob runs the extraction chain against a submitted URL.
func (w *Worker) HandleURLJob(ctx context.Context, t *asynq.Task) error {
	job, err := w.startJob(ctx, t)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	var data model.URLJobData
	if err := json.Unmarshal(job.JobData, &data); err != nil {
		w.failJob(ctx, job, model.ErrCodeInvalidPayload, "invalid job data", nil, nil)
		return nil
	}

	w.logger.Info("url job started",
		zap.String("job_id", job.ID),
		zap.String("source_url", data.SourceURL),
		zap.Bool("use_llm", data.UseLLM))

	result := w.orchestrator.ParseFromSource(ctx, model.IngestionInput{
		SourceType: model.SourceServerFetch,
		SourceURL:  data.SourceURL,
		UseLLM:     data.UseLLM,
	})

	if !result.Success {
		var nextAction *string
		if result.NextAction != "" {
			na := result.NextAction
			nextAction = &na
		}
		diag, _ := json.Marshal(result)
		w.failJob(ctx, job, result.ErrorCode, result.ErrorMessage, nextAction, diag)
		return nil
	}

	w.completeJob(ctx, job, &model.JobResult{
		Recipe:         result.Recipe,
		ParserStrategy: result.ParserStrategy,
		UsedLLM:        result.UsedLLM,
		Warnings:       result.Warnings,
	})
	return nil
}
