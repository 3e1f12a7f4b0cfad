package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type GenerationJob struct {
	Id               uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ThreadId         uuid.UUID      `gorm:"type:uuid;not null;index"`
	ProviderId       uuid.UUID      `gorm:"type:uuid;not null"`
	ModelId          uuid.UUID      `gorm:"type:uuid;not null;index"`
	State            string         `gorm:"type:varchar(16);not null;default:'draft';index"`
	InputMessageId   *uuid.UUID     `gorm:"type:uuid"`
	OutputMessageId  *uuid.UUID     `gorm:"type:uuid"`
	ExternalJobId    string         `gorm:"type:text;index"`
	ProviderData     datatypes.JSON `gorm:"type:jsonb"`
	GenerationInputs datatypes.JSON `gorm:"type:jsonb"`
	RetryCount       int            `gorm:"not null;default:0"`
	MaxRetries       int            `gorm:"not null"`
	QueuedAt         *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ErrorMessage     string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}

type GenerationQueue struct {
	Id                uuid.UUID `gorm:"type:uuid;primaryKey"`
	ModelId           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Enabled           bool      `gorm:"not null"`
	MaxConcurrentJobs int       `gorm:"not null;default:5"`
	AutoRetryFailed   bool      `gorm:"not null"`
	RetryDelayMinutes int       `gorm:"not null;default:5"`
	LastProcessedAt   *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (GenerationQueue) TableName() string {
	return "generation_queues"
}
