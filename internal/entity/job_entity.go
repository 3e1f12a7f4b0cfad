package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStateDraft     JobState = "draft"
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

func (s JobState) Active() bool {
	return s == JobStateQueued || s == JobStateRunning
}

type GenerationJob struct {
	Id               uuid.UUID
	ThreadId         uuid.UUID
	ProviderId       uuid.UUID
	ModelId          uuid.UUID
	State            JobState
	InputMessageId   *uuid.UUID
	OutputMessageId  *uuid.UUID
	ExternalJobId    string
	ProviderData     map[string]interface{}
	GenerationInputs map[string]interface{}
	RetryCount       int
	MaxRetries       int
	QueuedAt         *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type GenerationQueue struct {
	Id                uuid.UUID
	ModelId           uuid.UUID
	Enabled           bool
	MaxConcurrentJobs int
	AutoRetryFailed   bool
	RetryDelayMinutes int
	LastProcessedAt   *time.Time
	CreatedAt         time.Time
}
