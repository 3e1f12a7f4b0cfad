package dto

import (
	"time"

	"github.com/google/uuid"
)

type ProviderRequest struct {
	Id      uuid.UUID
	Name    string `json:"name" validate:"required"`
	Service string `json:"service" validate:"required,oneof=ollama openai huggingface gemini jina http"`
	BaseURL string `json:"base_url" validate:"omitempty,url"`
	APIKey  string `json:"api_key"`
}

type ProviderResponse struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Service   string    `json:"service"`
	BaseURL   string    `json:"base_url"`
	HasAPIKey bool      `json:"has_api_key"`
	CreatedAt time.Time `json:"created_at"`
}

type ModelRequest struct {
	Id                uuid.UUID
	ProviderId        uuid.UUID `json:"provider_id" validate:"required"`
	Name              string    `json:"name" validate:"required"`
	Use               string    `json:"use" validate:"required,oneof=chat embedding generation image_generation"`
	SupportsStreaming *bool     `json:"supports_streaming"`
	Dimensions        int       `json:"dimensions" validate:"omitempty,min=1"`
}

type ModelResponse struct {
	Id                uuid.UUID `json:"id"`
	ProviderId        uuid.UUID `json:"provider_id"`
	Name              string    `json:"name"`
	Use               string    `json:"use"`
	SupportsStreaming bool      `json:"supports_streaming"`
	Dimensions        int       `json:"dimensions"`
	CreatedAt         time.Time `json:"created_at"`
}

type StoreRequest struct {
	Id            uuid.UUID
	Name          string                 `json:"name" validate:"required"`
	Service       string                 `json:"service" validate:"required,oneof=pgvector qdrant chroma memory"`
	ConnectionURI string                 `json:"connection_uri"`
	APIKey        string                 `json:"api_key"`
	Active        *bool                  `json:"active"`
	Metadata      map[string]interface{} `json:"metadata"`
}

type StoreResponse struct {
	Id            uuid.UUID              `json:"id"`
	Name          string                 `json:"name"`
	Service       string                 `json:"service"`
	ConnectionURI string                 `json:"connection_uri"`
	Active        bool                   `json:"active"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Collections   []string               `json:"collections,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

type ToolResponse struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}
