package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByThreadID struct {
	ThreadID uuid.UUID
}

func (s ByThreadID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("thread_id = ?", s.ThreadID)
}

type ByProviderID struct {
	ProviderID uuid.UUID
}

func (s ByProviderID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("provider_id = ?", s.ProviderID)
}

type ByModelUse struct {
	Use string
}

func (s ByModelUse) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("model_use = ?", s.Use)
}

// PositionAfter matches messages positioned strictly after Position.
type PositionAfter struct {
	Position int64
}

func (s PositionAfter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("position > ?", s.Position)
}
