package entity

import (
	"time"

	"github.com/google/uuid"
)

// DefaultToolCallsMax caps tool rounds for assistants created without a limit.
const DefaultToolCallsMax = 5

// Assistant is a reusable thread preset: model, tools and a system prompt
// template rendered with DefaultValues.
type Assistant struct {
	Id             uuid.UUID
	Name           string
	Active         bool
	ProviderId     uuid.UUID
	ModelId        uuid.UUID
	PromptTemplate string
	DefaultValues  map[string]interface{}
	ToolNames      []string
	ToolCallsMax   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
