package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Resource struct {
	Id                 uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name               string     `gorm:"type:text;not null"`
	SourceURI          string     `gorm:"column:source_uri;type:text"`
	ContentType        string     `gorm:"type:text"`
	RawContent         []byte     `gorm:"type:bytea"`
	Retriever          string     `gorm:"type:varchar(64);not null;default:'default'"`
	Parser             string     `gorm:"type:varchar(64);not null;default:'default'"`
	Chunker            string     `gorm:"type:varchar(64);not null;default:'default'"`
	TargetChunkSize    int        `gorm:"not null;default:200"`
	TargetChunkOverlap int        `gorm:"not null;default:20"`
	Content            string     `gorm:"type:text"`
	State              string     `gorm:"type:varchar(20);not null;default:'draft';index"`
	LockTimestamp      *time.Time `gorm:"index"`
	LockHolder         *string    `gorm:"type:varchar(64);index"`
	LastError          string     `gorm:"type:text"`
	CreatedAt          time.Time  `gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime"`
}

func (Resource) TableName() string {
	return "resources"
}

// ResourceCollection is the membership join between resources and collections.
type ResourceCollection struct {
	ResourceId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	CollectionId uuid.UUID `gorm:"type:uuid;primaryKey;index"`
}

func (ResourceCollection) TableName() string {
	return "resource_collections"
}

type Chunk struct {
	Id         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ResourceId uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_chunk_resource_sequence"`
	Sequence   int            `gorm:"not null;uniqueIndex:idx_chunk_resource_sequence"`
	Content    string         `gorm:"type:text;not null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
}

func (Chunk) TableName() string {
	return "resource_chunks"
}

type Collection struct {
	Id                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name                string     `gorm:"type:text;not null"`
	Description         string     `gorm:"type:text"`
	Active              bool       `gorm:"not null"`
	EmbeddingModelId    *uuid.UUID `gorm:"type:uuid;index"`
	StoreId             *uuid.UUID `gorm:"type:uuid;index"`
	DefaultChunker      string     `gorm:"type:varchar(64);not null;default:'default'"`
	DefaultParser       string     `gorm:"type:varchar(64);not null;default:'default'"`
	DefaultChunkSize    int        `gorm:"not null;default:200"`
	DefaultChunkOverlap int        `gorm:"not null;default:20"`
	CreatedAt           time.Time  `gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime"`
}

func (Collection) TableName() string {
	return "collections"
}

type Store struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name          string         `gorm:"type:text;not null"`
	Service       string         `gorm:"type:varchar(32);not null"`
	ConnectionURI string         `gorm:"column:connection_uri;type:text"`
	APIKey        string         `gorm:"column:api_key;type:text"`
	Active        bool           `gorm:"not null"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
}

func (Store) TableName() string {
	return "vector_stores"
}

type ResourceAttachment struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResourceId uuid.UUID `gorm:"type:uuid;not null;index"`
	Name       string    `gorm:"type:text;not null"`
	MimeType   string    `gorm:"type:varchar(128)"`
	Data       []byte    `gorm:"type:bytea"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ResourceAttachment) TableName() string {
	return "resource_attachments"
}
