// Package queue builds and publishes the envelope protocol carried over
// asynq. Every queued message is a QueueEnvelope; the envelope job_type
// doubles as the asynq task type.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// NewEnvelope builds an outbound envelope for a job. WorkflowID falls back
// to the job ID so every envelope carries a correlation key.
func NewEnvelope(jobType, jobID, workflowID string, attempt int, payload any) (*model.QueueEnvelope, error) {
	if workflowID == "" {
		workflowID = jobID
	}
	env := &model.QueueEnvelope{
		SchemaVersion: model.EnvelopeSchemaVersion,
		JobID:         jobID,
		WorkflowID:    workflowID,
		JobType:       jobType,
		Source:        model.EnvelopeSource,
		CreatedAt:     time.Now().UTC(),
		Attempt:       attempt,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal envelope payload: %w", err)
		}
		env.Payload = data
	}
	return env, nil
}

// DecodeEnvelope parses and validates an inbound envelope. Unknown schema
// versions are rejected so a consumer never misreads a newer shape.
func DecodeEnvelope(data []byte) (*model.QueueEnvelope, error) {
	var env model.QueueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.SchemaVersion != model.EnvelopeSchemaVersion {
		return nil, fmt.Errorf("unsupported envelope schema_version %d", env.SchemaVersion)
	}
	if env.WorkflowID == "" {
		return nil, fmt.Errorf("envelope missing workflow_id")
	}
	if env.JobType == "" {
		return nil, fmt.Errorf("envelope missing job_type")
	}
	return &env, nil
}

// Publisher enqueues envelopes through asynq. Tasks carry MaxRetry(0):
// retries are decided by the job state machine, not by asynq redelivery,
// so a failed handler run never replays outside the attempts budget.
type Publisher struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewPublisher(client *asynq.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish enqueues one envelope on the given queue.
func (p *Publisher) Publish(env *model.QueueEnvelope, queueName string) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	task := asynq.NewTask(env.JobType, data)
	info, err := p.client.Enqueue(task,
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", env.JobType, err)
	}

	p.logger.Info("envelope enqueued",
		zap.String("task_id", info.ID),
		zap.String("queue", queueName),
		zap.String("job_type", env.JobType),
		zap.String("job_id", env.JobID),
		zap.String("workflow_id", env.WorkflowID))
	return nil
}

// PublishJob is the common path for self-addressed job envelopes.
func (p *Publisher) PublishJob(job *model.Job, payload any) error {
	env, err := NewEnvelope(taskTypeForJob(job.Type), job.ID, job.WorkflowID, job.Attempts, payload)
	if err != nil {
		return err
	}
	return p.Publish(env, model.QueueRecipeJobs)
}

// PublishOCRRequest sends an extraction request to the OCR service queue,
// addressed by workflow_id for the completion round trip.
func (p *Publisher) PublishOCRRequest(job *model.Job, payload model.OCRRequestPayload) error {
	env, err := NewEnvelope(model.EnvelopeTypeOCRRequested, job.ID, job.WorkflowID, job.Attempts, payload)
	if err != nil {
		return err
	}
	env.Target = "jarvis-ocr-service"
	env.ReplyTo = model.QueueRecipeJobs
	return p.Publish(env, model.QueueOCRJobs)
}

func taskTypeForJob(jobType model.JobType) string {
	switch jobType {
	case model.JobTypeURL:
		return model.EnvelopeTypeURLRequested
	case model.JobTypeIngestion:
		return model.EnvelopeTypeIngestion
	case model.JobTypeImage:
		return model.EnvelopeTypeImage
	case model.JobTypeMealPlanGenerate:
		return model.EnvelopeTypeMealPlanGenerate
	}
	return string(jobType)
}
