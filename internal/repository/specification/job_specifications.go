package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByModelID struct {
	ModelID uuid.UUID
}

func (s ByModelID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("model_id = ?", s.ModelID)
}

type ByExternalJobID struct {
	ExternalJobID string
}

func (s ByExternalJobID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("external_job_id = ?", s.ExternalJobID)
}

type CreatedBefore struct {
	Time time.Time
}

func (s CreatedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at < ?", s.Time)
}

type UpdatedBefore struct {
	Time time.Time
}

func (s UpdatedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("updated_at < ?", s.Time)
}

// RetriesRemaining matches jobs that have not used up their retry budget.
type RetriesRemaining struct{}

func (s RetriesRemaining) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("retry_count < max_retries")
}

type CreatedAfter struct {
	Time time.Time
}

func (s CreatedAfter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at >= ?", s.Time)
}

type CompletedBefore struct {
	Time time.Time
}

func (s CompletedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("completed_at IS NOT NULL AND completed_at <= ?", s.Time)
}

// WithExternalJob matches jobs already accepted by the provider.
type WithExternalJob struct{}

func (s WithExternalJob) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("external_job_id <> ''")
}
