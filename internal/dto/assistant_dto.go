package dto

import (
	"time"

	"github.com/google/uuid"
)

type AssistantRequest struct {
	Id             uuid.UUID
	Name           string                 `json:"name" validate:"required"`
	Active         *bool                  `json:"active"`
	ProviderId     uuid.UUID              `json:"provider_id" validate:"required"`
	ModelId        uuid.UUID              `json:"model_id" validate:"required"`
	PromptTemplate string                 `json:"prompt_template"`
	DefaultValues  map[string]interface{} `json:"default_values"`
	ToolNames      []string               `json:"tool_names"`
	ToolCallsMax   *int                   `json:"tool_calls_max" validate:"omitempty,min=1"`
}

type AssistantResponse struct {
	Id             uuid.UUID              `json:"id"`
	Name           string                 `json:"name"`
	Active         bool                   `json:"active"`
	ProviderId     uuid.UUID              `json:"provider_id"`
	ModelId        uuid.UUID              `json:"model_id"`
	PromptTemplate string                 `json:"prompt_template"`
	DefaultValues  map[string]interface{} `json:"default_values,omitempty"`
	ToolNames      []string               `json:"tool_names"`
	ToolCallsMax   int                    `json:"tool_calls_max"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
