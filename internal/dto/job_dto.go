package dto

import (
	"time"

	"github.com/google/uuid"
)

type GenerationJobResponse struct {
	Id               uuid.UUID              `json:"id"`
	ThreadId         uuid.UUID              `json:"thread_id"`
	ProviderId       uuid.UUID              `json:"provider_id"`
	ModelId          uuid.UUID              `json:"model_id"`
	State            string                 `json:"state"`
	InputMessageId   *uuid.UUID             `json:"input_message_id"`
	OutputMessageId  *uuid.UUID             `json:"output_message_id"`
	ExternalJobId    string                 `json:"external_job_id,omitempty"`
	GenerationInputs map[string]interface{} `json:"generation_inputs,omitempty"`
	RetryCount       int                    `json:"retry_count"`
	MaxRetries       int                    `json:"max_retries"`
	QueuedAt         *time.Time             `json:"queued_at"`
	StartedAt        *time.Time             `json:"started_at"`
	CompletedAt      *time.Time             `json:"completed_at"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

type CreateGenerationJobRequest struct {
	ThreadId         uuid.UUID              `json:"thread_id" validate:"required"`
	ProviderId       uuid.UUID              `json:"provider_id" validate:"required"`
	ModelId          uuid.UUID              `json:"model_id" validate:"required"`
	InputMessageId   *uuid.UUID             `json:"input_message_id"`
	GenerationInputs map[string]interface{} `json:"generation_inputs"`
	MaxRetries       int                    `json:"max_retries" validate:"omitempty,min=0"`
}

type ListJobsRequest struct {
	ThreadId *uuid.UUID
	ModelId  *uuid.UUID
	State    string
	Page     int
	PageSize int
}

type QueueSettingsRequest struct {
	ModelId           uuid.UUID `json:"model_id" validate:"required"`
	Enabled           *bool     `json:"enabled"`
	MaxConcurrentJobs int       `json:"max_concurrent_jobs" validate:"omitempty,min=1"`
	AutoRetryFailed   *bool     `json:"auto_retry_failed"`
	RetryDelayMinutes int       `json:"retry_delay_minutes" validate:"omitempty,min=0"`
}

type QueueStatsResponse struct {
	ModelId              uuid.UUID  `json:"model_id"`
	Enabled              bool       `json:"enabled"`
	MaxConcurrentJobs    int        `json:"max_concurrent_jobs"`
	AutoRetryFailed      bool       `json:"auto_retry_failed"`
	RetryDelayMinutes    int        `json:"retry_delay_minutes"`
	RunningJobs          int64      `json:"running_jobs"`
	QueuedJobs           int64      `json:"queued_jobs"`
	TodayJobs            int64      `json:"today_jobs"`
	AvgQueueSeconds      float64    `json:"avg_queue_seconds"`
	AvgProcessingSeconds float64    `json:"avg_processing_seconds"`
	SuccessRate          float64    `json:"success_rate"`
	Health               string     `json:"health"`
	LastProcessedAt      *time.Time `json:"last_processed_at"`
}

// QueueRunReport summarizes one scheduler tick over the job queues.
type QueueRunReport struct {
	Started int `json:"started"`
	Failed  int `json:"failed"`
	Queues  int `json:"queues"`
}

type StatusCheckReport struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
}
