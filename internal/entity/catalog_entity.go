package entity

import (
	"time"

	"github.com/google/uuid"
)

type Provider struct {
	Id        uuid.UUID
	Name      string
	Service   string // "ollama", "openai", "huggingface", "gemini", "jina", "http"
	BaseURL   string
	APIKey    string
	CreatedAt time.Time
}

type ModelUse string

const (
	ModelUseChat            ModelUse = "chat"
	ModelUseEmbedding       ModelUse = "embedding"
	ModelUseGeneration      ModelUse = "generation"
	ModelUseImageGeneration ModelUse = "image_generation"
)

type Model struct {
	Id                uuid.UUID
	ProviderId        uuid.UUID
	Name              string
	Use               ModelUse
	SupportsStreaming bool
	Dimensions        int
	CreatedAt         time.Time
}

// IsQueued reports whether requests for this model go through the job queue.
func (m *Model) IsQueued() bool {
	return m.Use == ModelUseGeneration || m.Use == ModelUseImageGeneration
}
