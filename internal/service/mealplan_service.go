package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
	"github.com/alexberardi/jarvis-recipes-server/internal/queue"
	"github.com/alexberardi/jarvis-recipes-server/internal/store"
)

// MealPlanService accepts meal plan generation requests as asynchronous
// jobs. Selection itself runs in the worker.
type MealPlanService struct {
	store     *store.Store
	publisher *queue.Publisher
	logger    *zap.Logger
}

func NewMealPlanService(st *store.Store, publisher *queue.Publisher, logger *zap.Logger) *MealPlanService {
	return &MealPlanService{store: st, publisher: publisher, logger: logger}
}

// Generate validates the request shape and enqueues a meal_plan_generate
// job carrying the full request as job_data.
func (s *MealPlanService) Generate(ctx context.Context, userID string, req *model.MealPlanGenerateRequest) (*model.JobSubmitResponse, error) {
	for _, day := range req.Days {
		for _, slot := range day.Slots {
			if !validMealType(slot.MealType) {
				return nil, fmt.Errorf("%w: unknown meal_type %q", ErrConflict, slot.MealType)
			}
		}
	}

	jobData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal job data: %w", err)
	}

	job := &model.Job{
		ID:      uuid.New().String(),
		UserID:  userID,
		Type:    model.JobTypeMealPlanGenerate,
		JobData: jobData,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publisher.PublishJob(job, req); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("meal plan job accepted",
		zap.String("job_id", job.ID),
		zap.Int("days", len(req.Days)))
	return &model.JobSubmitResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

func validMealType(mt model.MealType) bool {
	for _, v := range model.ValidMealTypes {
		if mt == v {
			return true
		}
	}
	return false
}
