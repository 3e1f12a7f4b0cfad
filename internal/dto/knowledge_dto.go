package dto

import (
	"time"

	"github.com/google/uuid"
)

// Resources

type CreateResourceRequest struct {
	Name               string      `json:"name" validate:"required"`
	SourceURI          string      `json:"source_uri"`
	ContentType        string      `json:"content_type"`
	Content            string      `json:"content"` // inline raw content
	Retriever          string      `json:"retriever"`
	Parser             string      `json:"parser"`
	Chunker            string      `json:"chunker"`
	TargetChunkSize    int         `json:"target_chunk_size" validate:"omitempty,min=1"`
	TargetChunkOverlap int         `json:"target_chunk_overlap" validate:"omitempty,min=0"`
	CollectionIds      []uuid.UUID `json:"collection_ids"`
	Process            bool        `json:"process"`
}

type UpdateResourceRequest struct {
	Id                 uuid.UUID
	Name               string `json:"name" validate:"required"`
	SourceURI          string `json:"source_uri"`
	ContentType        string `json:"content_type"`
	Content            string `json:"content"`
	Retriever          string `json:"retriever"`
	Parser             string `json:"parser"`
	Chunker            string `json:"chunker"`
	TargetChunkSize    int    `json:"target_chunk_size" validate:"omitempty,min=1"`
	TargetChunkOverlap int    `json:"target_chunk_overlap" validate:"omitempty,min=0"`
}

type ListResourcesRequest struct {
	CollectionId *uuid.UUID
	State        string
	Search       string
	Page         int
	PageSize     int
}

type ResourceResponse struct {
	Id                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	SourceURI          string      `json:"source_uri"`
	ContentType        string      `json:"content_type"`
	Retriever          string      `json:"retriever"`
	Parser             string      `json:"parser"`
	Chunker            string      `json:"chunker"`
	TargetChunkSize    int         `json:"target_chunk_size"`
	TargetChunkOverlap int         `json:"target_chunk_overlap"`
	State              string      `json:"state"`
	Locked             bool        `json:"locked"`
	LastError          string      `json:"last_error,omitempty"`
	Content            string      `json:"content,omitempty"`
	CollectionIds      []uuid.UUID `json:"collection_ids"`
	ChunkCount         int64       `json:"chunk_count"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

type ChunkResponse struct {
	Id         uuid.UUID              `json:"id"`
	ResourceId uuid.UUID              `json:"resource_id"`
	Sequence   int                    `json:"sequence"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type ResourceIdsRequest struct {
	ResourceIds []uuid.UUID `json:"resource_ids" validate:"required,min=1"`
}

// PublishProcessResourcesMessage is the payload of the resource.process topic.
type PublishProcessResourcesMessage struct {
	ResourceIds []uuid.UUID `json:"resource_ids"`
}

// Pipeline reports

type ResourceFailure struct {
	ResourceId uuid.UUID `json:"resource_id"`
	Stage      string    `json:"stage"`
	Error      string    `json:"error"`
}

type PipelineReport struct {
	Retrieved int               `json:"retrieved"`
	Parsed    int               `json:"parsed"`
	Reset     int               `json:"reset"`
	Chunked   int               `json:"chunked"`
	Embedded  int               `json:"embedded"`
	Skipped   int               `json:"skipped"`
	Failures  []ResourceFailure `json:"failures"`
}

// Merge folds another report into r.
func (r *PipelineReport) Merge(o *PipelineReport) {
	if o == nil {
		return
	}
	r.Retrieved += o.Retrieved
	r.Parsed += o.Parsed
	r.Reset += o.Reset
	r.Chunked += o.Chunked
	r.Embedded += o.Embedded
	r.Skipped += o.Skipped
	r.Failures = append(r.Failures, o.Failures...)
}

// Collections

type CreateCollectionRequest struct {
	Name                string     `json:"name" validate:"required"`
	Description         string     `json:"description"`
	Active              *bool      `json:"active"`
	EmbeddingModelId    *uuid.UUID `json:"embedding_model_id"`
	StoreId             *uuid.UUID `json:"store_id"`
	DefaultChunker      string     `json:"default_chunker"`
	DefaultParser       string     `json:"default_parser"`
	DefaultChunkSize    int        `json:"default_chunk_size" validate:"omitempty,min=1"`
	DefaultChunkOverlap int        `json:"default_chunk_overlap" validate:"omitempty,min=0"`
}

type UpdateCollectionRequest struct {
	Id                  uuid.UUID
	Name                string     `json:"name" validate:"required"`
	Description         string     `json:"description"`
	Active              *bool      `json:"active"`
	EmbeddingModelId    *uuid.UUID `json:"embedding_model_id"`
	StoreId             *uuid.UUID `json:"store_id"`
	DefaultChunker      string     `json:"default_chunker"`
	DefaultParser       string     `json:"default_parser"`
	DefaultChunkSize    int        `json:"default_chunk_size" validate:"omitempty,min=1"`
	DefaultChunkOverlap int        `json:"default_chunk_overlap" validate:"omitempty,min=0"`
}

type CollectionResponse struct {
	Id                  uuid.UUID      `json:"id"`
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	Active              bool           `json:"active"`
	EmbeddingModelId    *uuid.UUID     `json:"embedding_model_id"`
	StoreId             *uuid.UUID     `json:"store_id"`
	StoreCollection     string         `json:"store_collection"`
	DefaultChunker      string         `json:"default_chunker"`
	DefaultParser       string         `json:"default_parser"`
	DefaultChunkSize    int            `json:"default_chunk_size"`
	DefaultChunkOverlap int            `json:"default_chunk_overlap"`
	ResourceCount       int            `json:"resource_count"`
	ResourceStates      map[string]int `json:"resource_states,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type EmbedFailure struct {
	ResourceIds []uuid.UUID `json:"resource_ids"`
	Batch       int         `json:"batch"`
	Error       string      `json:"error"`
}

type EmbedReport struct {
	CollectionId       uuid.UUID      `json:"collection_id"`
	Success            bool           `json:"success"`
	ProcessedChunks    int            `json:"processed_chunks"`
	ProcessedResources int            `json:"processed_resources"`
	ReadyResourceIds   []uuid.UUID    `json:"ready_resource_ids"`
	Failures           []EmbedFailure `json:"failures"`
}

// Search

type SearchRequest struct {
	Query         string                 `json:"query"`
	Vector        []float32              `json:"vector"`
	CollectionId  *uuid.UUID             `json:"collection_id"`
	Limit         int                    `json:"limit" validate:"omitempty,min=1,max=200"`
	Offset        int                    `json:"offset" validate:"omitempty,min=0"`
	MinSimilarity *float64               `json:"min_similarity" validate:"omitempty,min=0,max=1"`
	Filter        map[string]interface{} `json:"filter"`
}

type SearchResult struct {
	ChunkId      uuid.UUID              `json:"chunk_id"`
	ResourceId   uuid.UUID              `json:"resource_id"`
	ResourceName string                 `json:"resource_name"`
	CollectionId uuid.UUID              `json:"collection_id"`
	Sequence     int                    `json:"sequence"`
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Score        float64                `json:"score"`
}

type SkippedCollection struct {
	CollectionId uuid.UUID `json:"collection_id"`
	Reason       string    `json:"reason"`
}

type SearchResponse struct {
	Results            []SearchResult      `json:"results"`
	Total              int                 `json:"total"`
	SkippedCollections []SkippedCollection `json:"skipped_collections,omitempty"`
}
