package entity

import (
	"time"

	"github.com/google/uuid"
)

type ResourceState string

const (
	ResourceStateDraft     ResourceState = "draft"
	ResourceStateRetrieved ResourceState = "retrieved"
	ResourceStateParsed    ResourceState = "parsed"
	ResourceStateChunked   ResourceState = "chunked"
	ResourceStateReady     ResourceState = "ready"
)

type Resource struct {
	Id                 uuid.UUID
	Name               string
	SourceURI          string
	ContentType        string
	RawContent         []byte
	Retriever          string
	Parser             string
	Chunker            string
	TargetChunkSize    int
	TargetChunkOverlap int
	Content            string
	State              ResourceState
	LockTimestamp      *time.Time
	LockHolder         *string
	LastError          string
	CollectionIds      []uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r *Resource) IsLocked(staleBefore time.Time) bool {
	return r.LockTimestamp != nil && r.LockTimestamp.After(staleBefore)
}

type Chunk struct {
	Id         uuid.UUID
	ResourceId uuid.UUID
	Sequence   int
	Content    string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}

type Collection struct {
	Id                  uuid.UUID
	Name                string
	Description         string
	Active              bool
	EmbeddingModelId    *uuid.UUID
	StoreId             *uuid.UUID
	DefaultChunker      string
	DefaultParser       string
	DefaultChunkSize    int
	DefaultChunkOverlap int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type StoreService string

const (
	StoreServicePgVector StoreService = "pgvector"
	StoreServiceQdrant   StoreService = "qdrant"
	StoreServiceChroma   StoreService = "chroma"
	StoreServiceMemory   StoreService = "memory"
)

type Store struct {
	Id            uuid.UUID
	Name          string
	Service       StoreService
	ConnectionURI string
	APIKey        string
	Active        bool
	Metadata      map[string]interface{}
	CreatedAt     time.Time
}

type ResourceAttachment struct {
	Id         uuid.UUID
	ResourceId uuid.UUID
	Name       string
	MimeType   string
	Data       []byte
	CreatedAt  time.Time
}
