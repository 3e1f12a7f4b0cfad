package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Assistant struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name           string         `gorm:"type:text;not null"`
	Active         bool           `gorm:"not null"`
	ProviderId     uuid.UUID      `gorm:"type:uuid;not null"`
	ModelId        uuid.UUID      `gorm:"type:uuid;not null;index"`
	PromptTemplate string         `gorm:"type:text"`
	DefaultValues  datatypes.JSON `gorm:"type:jsonb"`
	ToolNames      datatypes.JSON `gorm:"type:jsonb"`
	ToolCallsMax   int            `gorm:"not null;default:5"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
}

func (Assistant) TableName() string {
	return "llm_assistants"
}

func (m *Assistant) BeforeCreate(*gorm.DB) error { assignID(&m.Id); return nil }
