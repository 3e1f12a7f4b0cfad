package model

import (
	"time"

	"github.com/google/uuid"
)

type Provider struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	Service   string    `gorm:"type:varchar(32);not null"`
	BaseURL   string    `gorm:"column:base_url;type:text"`
	APIKey    string    `gorm:"column:api_key;type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Provider) TableName() string {
	return "llm_providers"
}

type LLMModel struct {
	Id                uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProviderId        uuid.UUID `gorm:"type:uuid;not null;index"`
	Name              string    `gorm:"type:text;not null"`
	Use               string    `gorm:"column:model_use;type:varchar(32);not null;default:'chat'"`
	SupportsStreaming bool      `gorm:"not null"`
	Dimensions        int       `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (LLMModel) TableName() string {
	return "llm_models"
}
