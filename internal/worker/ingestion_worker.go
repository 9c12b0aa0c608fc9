package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/extract"
	"github.com/alexberardi/jarvis-recipes-server/internal/model"
	"github.com/alexberardi/jarvis-recipes-server/internal/ocrtext"
	"github.com/alexberardi/jarvis-recipes-server/internal/queue"
	"github.com/alexberardi/jarvis-recipes-server/internal/store"
)

// HandleIngestionJob dispatches an image ingestion to the OCR service via
// the queue. The job stays RUNNING until the ocr.completed envelope comes
// back, correlated by workflow_id.
func (w *Worker) HandleIngestionJob(ctx context.Context, t *asynq.Task) error {
	job, err := w.startJob(ctx, t)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	ingestion, ok := w.loadIngestion(ctx, job)
	if !ok {
		return nil
	}

	refs := make([]model.ImageRef, 0, len(ingestion.ImageKeys))
	for i, key := range ingestion.ImageKeys {
		refs = append(refs, model.ImageRef{Kind: "s3_key", Value: key, Index: i})
	}

	if err := w.store.UpdateIngestionStatus(ctx, ingestion.ID, model.IngestionStatusRunning, nil); err != nil {
		w.logger.Error("update ingestion status", zap.String("ingestion_id", ingestion.ID), zap.Error(err))
	}

	payload := model.OCRRequestPayload{
		ImageRefs: refs,
		Provider:  "auto",
	}
	if err := w.publisher.PublishOCRRequest(job, payload); err != nil {
		w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeOCRUnavailable,
			"could not reach OCR queue: "+err.Error(), nil)
		return nil
	}

	w.logger.Info("ocr request dispatched",
		zap.String("job_id", job.ID),
		zap.String("workflow_id", job.WorkflowID),
		zap.Int("images", len(refs)))
	return nil
}

// HandleImageJob runs OCR synchronously for small batches.
func (w *Worker) HandleImageJob(ctx context.Context, t *asynq.Task) error {
	job, err := w.startJob(ctx, t)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	ingestion, ok := w.loadIngestion(ctx, job)
	if !ok {
		return nil
	}

	if w.ocrClient == nil || !w.ocrClient.IsConfigured() {
		w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeOCRUnavailable,
			"OCR service not configured", nil)
		return nil
	}

	if err := w.store.UpdateIngestionStatus(ctx, ingestion.ID, model.IngestionStatusRunning, nil); err != nil {
		w.logger.Error("update ingestion status", zap.String("ingestion_id", ingestion.ID), zap.Error(err))
	}

	images := make([]string, 0, len(ingestion.ImageKeys))
	for _, key := range ingestion.ImageKeys {
		data, err := w.storage.Download(ctx, key)
		if err != nil {
			w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeWorkerError,
				"download image "+key+": "+err.Error(), nil)
			return nil
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}

	results, provider, err := w.ocrClient.ExtractBatch(ctx, images, nil)
	if err != nil {
		w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeOCRUnavailable,
			"ocr batch: "+err.Error(), nil)
		return nil
	}

	w.processOCRResults(ctx, job, ingestion, results, provider)
	return nil
}

// HandleOCRCompleted consumes completion envelopes from the OCR service.
// The OCR worker mints its own job_id, so the Job row is found by
// workflow_id. Unknown workflows are dropped, not retried.
func (w *Worker) HandleOCRCompleted(ctx context.Context, t *asynq.Task) error {
	env, err := queue.DecodeEnvelope(t.Payload())
	if err != nil {
		w.logger.Error("drop undecodable ocr.completed envelope", zap.Error(err))
		return nil
	}

	job, err := w.store.GetJobByWorkflowID(ctx, env.WorkflowID)
	if err != nil {
		w.logger.Warn("ocr.completed for unknown workflow",
			zap.String("workflow_id", env.WorkflowID), zap.Error(err))
		return nil
	}
	if job.Status != model.JobStatusRunning {
		w.logger.Info("drop ocr.completed, job not running",
			zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
		return nil
	}

	var payload model.OCRCompletedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		w.failJob(ctx, job, model.ErrCodeInvalidPayload, "invalid ocr.completed payload", nil, nil)
		return nil
	}

	ingestion, ok := w.loadIngestion(ctx, job)
	if !ok {
		return nil
	}

	w.processOCRResults(ctx, job, ingestion, payload.Results, payload.ProviderUsed)
	return nil
}

func (w *Worker) loadIngestion(ctx context.Context, job *model.Job) (*model.Ingestion, bool) {
	var data model.IngestionJobData
	if err := json.Unmarshal(job.JobData, &data); err != nil || data.IngestionID == "" {
		w.failJob(ctx, job, model.ErrCodeInvalidPayload, "invalid job data", nil, nil)
		return nil, false
	}

	ingestion, err := w.store.GetIngestion(ctx, data.IngestionID)
	if err != nil {
		code := model.ErrCodeWorkerError
		if err == store.ErrNotFound {
			code = model.ErrCodeInvalidPayload
		}
		w.failJob(ctx, job, code, "load ingestion: "+err.Error(), nil, nil)
		return nil, false
	}
	return ingestion, true
}

// failIngestionJob fails both the ingestion row and the job.
func (w *Worker) failIngestionJob(ctx context.Context, job *model.Job, ingestionID, code, message string, pipeline map[string]interface{}) {
	var pipelineJSON json.RawMessage
	if pipeline != nil {
		pipelineJSON, _ = json.Marshal(pipeline)
	}
	if err := w.store.UpdateIngestionStatus(ctx, ingestionID, model.IngestionStatusFailed, pipelineJSON); err != nil {
		w.logger.Error("update ingestion status", zap.String("ingestion_id", ingestionID), zap.Error(err))
	}
	var diag json.RawMessage
	if pipeline != nil {
		diag, _ = json.Marshal(model.JobResult{Pipeline: pipeline})
	}
	w.failJob(ctx, job, code, message, nil, diag)
}

// processOCRResults is the shared back half of the image pipeline:
// reassemble text in index order, gate quality, structure with the model,
// validate the draft.
func (w *Worker) processOCRResults(ctx context.Context, job *model.Job, ingestion *model.Ingestion, results []model.OCRImageResult, provider string) {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	var (
		texts          []string
		perImageErrors []map[string]interface{}
		confSum        float64
		confCount      int
	)
	for _, r := range results {
		if r.Error != "" {
			perImageErrors = append(perImageErrors, map[string]interface{}{
				"index": r.Index,
				"error": r.Error,
			})
			continue
		}
		texts = append(texts, r.Text)
		if r.Confidence != nil {
			confSum += *r.Confidence
			confCount++
		}
	}

	pipeline := map[string]interface{}{
		"ocr": map[string]interface{}{
			"provider":     provider,
			"image_count":  len(results),
			"failed_count": len(perImageErrors),
		},
	}
	if len(perImageErrors) > 0 {
		pipeline["per_image_errors"] = perImageErrors
	}

	if len(results) > 0 && len(texts) == 0 {
		w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeOCRAllImagesFailed,
			"every image failed OCR", pipeline)
		return
	}

	combined := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if combined == "" {
		w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeOCRNoText,
			"OCR produced no text", pipeline)
		return
	}

	var meanConf *float64
	if confCount > 0 {
		m := confSum / float64(confCount)
		meanConf = &m
	}

	// The queue round trip can outlive a cancel request.
	if w.isCanceled(ctx, job.ID) {
		w.logger.Info("skip canceled job before quality gate", zap.String("job_id", job.ID))
		return
	}

	quality := ocrtext.Score(combined, meanConf)
	pipeline["quality"] = quality

	if !quality.Pass {
		message := "OCR text failed the quality gate"
		if quality.Gibberish {
			message = "OCR text looks like gibberish"
			pipeline["warnings"] = []string{model.WarningGibberishOCR}
		}
		w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeQualityGateFailed, message, pipeline)
		return
	}

	if w.isCanceled(ctx, job.ID) {
		w.logger.Info("skip canceled job before structuring", zap.String("job_id", job.ID))
		return
	}

	draft, err := extract.StructureText(ctx, w.chat, w.modelName, combined)
	if err != nil {
		code := errorCodeFromErr(err, model.ErrCodeLLMFailed)
		w.failIngestionJob(ctx, job, ingestion.ID, code, err.Error(), pipeline)
		return
	}
	if !draft.ValidateMinimums() {
		w.failIngestionJob(ctx, job, ingestion.ID, model.ErrCodeDraftValidationFailed,
			"draft below minimum content floor", pipeline)
		return
	}

	draft = extract.CleanAndValidateDraft(ctx, w.chat, w.liteModel, draft)

	resultPipeline, _ := json.Marshal(pipeline)
	if err := w.store.UpdateIngestionStatus(ctx, ingestion.ID, model.IngestionStatusSucceeded, resultPipeline); err != nil {
		w.logger.Error("update ingestion status", zap.String("ingestion_id", ingestion.ID), zap.Error(err))
	}

	w.completeJob(ctx, job, &model.JobResult{
		RecipeDraft: draft,
		UsedLLM:     true,
		Pipeline:    pipeline,
	})
}
