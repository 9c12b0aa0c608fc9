package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/client"
	"github.com/alexberardi/jarvis-recipes-server/internal/extract"
	"github.com/alexberardi/jarvis-recipes-server/internal/model"
	"github.com/alexberardi/jarvis-recipes-server/internal/queue"
	"github.com/alexberardi/jarvis-recipes-server/internal/store"
)

// Sentinel errors mapped to HTTP statuses by the handlers.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// syncImageThreshold splits image jobs between the synchronous OCR batch
// call and the queue round trip through the OCR service.
const syncImageThreshold = 2

// IngestService owns recipe import: URL jobs, webview ingestion, and
// image upload ingestion. Asynchronous work is recorded as a Job before
// anything is enqueued so a lost envelope leaves a visible PENDING row.
type IngestService struct {
	store        *store.Store
	publisher    *queue.Publisher
	orchestrator *extract.Orchestrator
	fetcher      *extract.Fetcher
	storage      client.StorageClient
	logger       *zap.Logger
}

func NewIngestService(
	st *store.Store,
	publisher *queue.Publisher,
	orchestrator *extract.Orchestrator,
	fetcher *extract.Fetcher,
	storage client.StorageClient,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		store:        st,
		publisher:    publisher,
		orchestrator: orchestrator,
		fetcher:      fetcher,
		storage:      storage,
		logger:       logger,
	}
}

// ImportURL preflights the URL, then creates and enqueues a url job.
// A failed preflight returns the diagnosis instead of a job so the client
// can fall back to webview extraction without burning an attempt.
func (s *IngestService) ImportURL(ctx context.Context, userID string, req *model.ImportURLRequest) (*model.JobSubmitResponse, *model.PreflightResult, error) {
	pf := s.fetcher.Preflight(ctx, req.SourceURL)
	if !pf.OK {
		return nil, &pf, nil
	}

	jobData, err := json.Marshal(model.URLJobData{SourceURL: req.SourceURL, UseLLM: req.UseLLM})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job data: %w", err)
	}

	job := &model.Job{
		ID:      uuid.New().String(),
		UserID:  userID,
		Type:    model.JobTypeURL,
		JobData: jobData,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publisher.PublishJob(job, model.URLJobData{SourceURL: req.SourceURL, UseLLM: req.UseLLM}); err != nil {
		return nil, nil, fmt.Errorf("enqueue job: %w", err)
	}

	return &model.JobSubmitResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil, nil
}

// Preflight checks a URL without creating any job.
func (s *IngestService) Preflight(ctx context.Context, req *model.PreflightRequest) model.PreflightResult {
	return s.fetcher.Preflight(ctx, req.SourceURL)
}

// IngestOutcome is the tagged result of an Ingest call: synchronous
// sources produce a ParseResult, image uploads produce a queued job.
type IngestOutcome struct {
	Parse *model.ParseResult
	Job   *model.JobSubmitResponse
}

// Ingest handles one ingestion submission. Webview and server-fetch
// sources run the extraction chain inline; image uploads are stored and
// queued for the OCR pipeline.
func (s *IngestService) Ingest(ctx context.Context, userID string, req *model.IngestRequest) (*IngestOutcome, error) {
	switch req.SourceType {
	case model.SourceServerFetch, model.SourceClientWebview:
		result := s.orchestrator.ParseFromSource(ctx, model.IngestionInput{
			SourceType:   req.SourceType,
			SourceURL:    req.SourceURL,
			JSONLDBlocks: req.JSONLDBlocks,
			HTMLSnippet:  req.HTMLSnippet,
			UseLLM:       req.UseLLM,
		})
		return &IngestOutcome{Parse: &result}, nil

	case model.SourceImageUpload:
		job, err := s.ingestImages(ctx, userID, req)
		if err != nil {
			return nil, err
		}
		return &IngestOutcome{Job: job}, nil
	}

	return nil, fmt.Errorf("%w: unknown source_type %q", ErrConflict, req.SourceType)
}

// ingestImages validates and stores uploaded images, records the
// ingestion, then creates and enqueues its job. Small batches become
// synchronous image jobs; larger ones go through the OCR queue.
func (s *IngestService) ingestImages(ctx context.Context, userID string, req *model.IngestRequest) (*model.JobSubmitResponse, error) {
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("%w: no images provided", ErrConflict)
	}
	if len(req.Images) > model.MaxImages {
		return nil, fmt.Errorf("%w: too many images (max %d)", ErrConflict, model.MaxImages)
	}

	decoded := make([][]byte, 0, len(req.Images))
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d is not valid base64", ErrConflict, i)
		}
		if len(data) > model.MaxImageBytes {
			return nil, fmt.Errorf("%w: image %d exceeds size limit", ErrConflict, i)
		}
		decoded = append(decoded, data)
	}

	ingestionID := uuid.New().String()
	keys := make([]string, 0, len(decoded))
	for i, data := range decoded {
		key := client.ImageKey(userID, ingestionID, i)
		if _, err := s.storage.Upload(ctx, key, bytes.NewReader(data), "image/jpeg"); err != nil {
			return nil, fmt.Errorf("upload image %d: %w", i, err)
		}
		keys = append(keys, key)
	}

	tierMax := req.TierMax
	if tierMax == 0 {
		tierMax = 1
	}
	ingestion := &model.Ingestion{
		ID:        ingestionID,
		UserID:    userID,
		ImageKeys: keys,
		TierMax:   tierMax,
	}
	if err := s.store.CreateIngestion(ctx, ingestion); err != nil {
		return nil, fmt.Errorf("create ingestion: %w", err)
	}

	jobType := model.JobTypeIngestion
	if len(keys) <= syncImageThreshold {
		jobType = model.JobTypeImage
	}

	jobData, err := json.Marshal(model.IngestionJobData{IngestionID: ingestionID})
	if err != nil {
		return nil, fmt.Errorf("marshal job data: %w", err)
	}

	job := &model.Job{
		ID:      uuid.New().String(),
		UserID:  userID,
		Type:    jobType,
		JobData: jobData,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publisher.PublishJob(job, model.IngestionJobData{IngestionID: ingestionID}); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return &model.JobSubmitResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// getOwnedJob loads a job and enforces ownership.
func (s *IngestService) getOwnedJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}
	return job, nil
}

// GetStatus reports lifecycle state for polling clients.
func (s *IngestService) GetStatus(ctx context.Context, userID, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.getOwnedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:        job.ID,
		Type:         job.Type,
		Status:       job.Status,
		Attempts:     job.Attempts,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		NextAction:   job.NextAction,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}, nil
}

// GetResult returns the result of a COMPLETE or COMMITTED job.
func (s *IngestService) GetResult(ctx context.Context, userID, jobID string) (*model.JobResult, error) {
	job, err := s.getOwnedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusComplete && job.Status != model.JobStatusCommitted {
		return nil, fmt.Errorf("%w: job is %s", ErrConflict, job.Status)
	}

	var result model.JobResult
	if err := json.Unmarshal(job.ResultJSON, &result); err != nil {
		return nil, fmt.Errorf("unmarshal job result: %w", err)
	}
	return &result, nil
}

// Cancel requests cancellation. Succeeds from PENDING, RUNNING and
// COMPLETE; terminal states reject with the current status.
func (s *IngestService) Cancel(ctx context.Context, userID, jobID string) (*model.JobCancelResponse, error) {
	job, err := s.getOwnedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	applied, err := s.store.MarkCanceled(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: job is %s", ErrConflict, job.Status)
	}

	s.logger.Info("job canceled", zap.String("job_id", jobID), zap.String("user_id", userID))
	return &model.JobCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}

// Commit accepts a COMPLETE job's result as a permanent recipe. The
// recipe row is written before the status flips so a crash between the
// two leaves a re-committable COMPLETE job, never a lost recipe.
func (s *IngestService) Commit(ctx context.Context, userID, jobID string) (*model.JobCommitResponse, error) {
	job, err := s.getOwnedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusComplete {
		return nil, fmt.Errorf("%w: job is %s", ErrConflict, job.Status)
	}

	var result model.JobResult
	if err := json.Unmarshal(job.ResultJSON, &result); err != nil {
		return nil, fmt.Errorf("unmarshal job result: %w", err)
	}

	recipe, err := recipeFromResult(userID, &result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err := s.store.InsertRecipe(ctx, recipe); err != nil {
		return nil, fmt.Errorf("insert recipe: %w", err)
	}

	applied, err := s.store.MarkCommitted(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race against a cancel or a concurrent commit.
		return nil, fmt.Errorf("%w: job no longer committable", ErrConflict)
	}

	if job.Type == model.JobTypeIngestion || job.Type == model.JobTypeImage {
		var data model.IngestionJobData
		if err := json.Unmarshal(job.JobData, &data); err == nil && data.IngestionID != "" {
			if err := s.store.LinkIngestionRecipe(ctx, data.IngestionID, recipe.ID); err != nil {
				s.logger.Warn("link ingestion recipe failed",
					zap.String("ingestion_id", data.IngestionID), zap.Error(err))
			}
		}
	}

	s.logger.Info("job committed",
		zap.String("job_id", jobID),
		zap.String("recipe_id", recipe.ID))
	return &model.JobCommitResponse{
		Success:  true,
		JobID:    jobID,
		Status:   model.JobStatusCommitted,
		RecipeID: recipe.ID,
	}, nil
}

// recipeFromResult converts either result shape into a recipe row.
func recipeFromResult(userID string, result *model.JobResult) (*model.Recipe, error) {
	recipe := &model.Recipe{
		ID:     uuid.New().String(),
		UserID: userID,
	}

	switch {
	case result.Recipe != nil:
		r := result.Recipe
		recipe.Title = r.Title
		recipe.Description = r.Description
		recipe.SourceURL = r.SourceURL
		recipe.ImageURL = r.ImageURL
		recipe.Tags = r.Tags
		recipe.Servings = r.Servings
		recipe.TotalTimeMinutes = r.EstimatedTimeMinutes
		recipe.Ingredients = r.Ingredients
		recipe.Steps = r.Steps
		recipe.Notes = r.Notes

	case result.RecipeDraft != nil:
		d := result.RecipeDraft
		recipe.Title = d.Title
		recipe.Description = d.Description
		recipe.Tags = d.Tags
		recipe.TotalTimeMinutes = d.TotalTimeMinutes
		recipe.Steps = d.Steps
		for _, ing := range d.Ingredients {
			recipe.Ingredients = append(recipe.Ingredients, model.ParsedIngredient{
				Text:            ing.Name,
				QuantityDisplay: ing.Quantity,
				Unit:            ing.Unit,
			})
		}

	default:
		return nil, errors.New("job result has no recipe")
	}

	if recipe.Title == "" || len(recipe.Ingredients) == 0 || len(recipe.Steps) == 0 {
		return nil, errors.New("job result incomplete")
	}
	return recipe, nil
}

// Retry re-enqueues an ERROR job if its budget allows. Used by the
// handler-facing retry path; the worker-side policy lives with the worker.
func (s *IngestService) Retry(ctx context.Context, userID, jobID string, maxAttempts int) (*model.JobSubmitResponse, error) {
	job, err := s.getOwnedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusError {
		return nil, fmt.Errorf("%w: job is %s", ErrConflict, job.Status)
	}
	if job.Attempts >= maxAttempts {
		return nil, fmt.Errorf("%w: attempts exhausted", ErrConflict)
	}

	applied, err := s.store.Requeue(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: job no longer retryable", ErrConflict)
	}

	job.Status = model.JobStatusPending
	var payload any
	_ = json.Unmarshal(job.JobData, &payload)
	if err := s.publisher.PublishJob(job, payload); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return &model.JobSubmitResponse{
		JobID:     job.ID,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
