package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Thread struct {
	Id           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name         string         `gorm:"type:text;not null"`
	ProviderId   uuid.UUID      `gorm:"type:uuid;not null"`
	ModelId      uuid.UUID      `gorm:"type:uuid;not null"`
	AssistantId  *uuid.UUID     `gorm:"type:uuid;index"`
	SystemPrompt string         `gorm:"type:text"`
	ToolNames    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
}

func (Thread) TableName() string {
	return "threads"
}

type Message struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ThreadId  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_message_thread_position"`
	Position  int64          `gorm:"not null;uniqueIndex:idx_message_thread_position"`
	Role      string         `gorm:"type:varchar(16);not null"`
	Body      string         `gorm:"type:text"`
	BodyJSON  datatypes.JSON `gorm:"column:body_json;type:jsonb"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (Message) TableName() string {
	return "thread_messages"
}
