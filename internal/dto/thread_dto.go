package dto

import (
	"time"

	"github.com/google/uuid"
)

// CreateThreadRequest either names the model directly or takes provider,
// model and tools from AssistantId.
type CreateThreadRequest struct {
	Name         string     `json:"name" validate:"required"`
	ProviderId   uuid.UUID  `json:"provider_id" validate:"required_without=AssistantId"`
	ModelId      uuid.UUID  `json:"model_id" validate:"required_without=AssistantId"`
	AssistantId  *uuid.UUID `json:"assistant_id"`
	SystemPrompt string     `json:"system_prompt"`
	ToolNames    []string   `json:"tool_names"`
}

type UpdateThreadRequest struct {
	Id           uuid.UUID
	Name         string     `json:"name" validate:"required"`
	ProviderId   uuid.UUID  `json:"provider_id" validate:"required_without=AssistantId"`
	ModelId      uuid.UUID  `json:"model_id" validate:"required_without=AssistantId"`
	AssistantId  *uuid.UUID `json:"assistant_id"`
	SystemPrompt string     `json:"system_prompt"`
	ToolNames    []string   `json:"tool_names"`
}

type ThreadResponse struct {
	Id           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	ProviderId   uuid.UUID  `json:"provider_id"`
	ModelId      uuid.UUID  `json:"model_id"`
	AssistantId  *uuid.UUID `json:"assistant_id,omitempty"`
	SystemPrompt string     `json:"system_prompt"`
	ToolNames    []string   `json:"tool_names"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type MessageResponse struct {
	Id        uuid.UUID              `json:"id"`
	ThreadId  uuid.UUID              `json:"thread_id"`
	Position  int64                  `json:"position"`
	Role      string                 `json:"role"`
	Body      string                 `json:"body"`
	BodyJSON  map[string]interface{} `json:"body_json,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

type GenerateRequest struct {
	Body string `json:"body"`
}

type ThreadEventType string

const (
	EventMessageCreated ThreadEventType = "message_created"
	EventMessageChunk   ThreadEventType = "message_chunk"
	EventMessageUpdated ThreadEventType = "message_updated"
	EventToolCalled     ThreadEventType = "tool_called"
	EventToolSucceeded  ThreadEventType = "tool_succeeded"
	EventToolFailed     ThreadEventType = "tool_failed"
	EventJobStatus      ThreadEventType = "job_status"
	EventError          ThreadEventType = "error"
	EventDone           ThreadEventType = "done"
)

// ThreadEvent is one step of a generation cycle as streamed to clients.
type ThreadEvent struct {
	Type     ThreadEventType  `json:"type"`
	ThreadId uuid.UUID        `json:"thread_id"`
	Message  *MessageResponse `json:"message,omitempty"`
	Delta    string           `json:"delta,omitempty"`
	ToolName string           `json:"tool_name,omitempty"`
	JobId    *uuid.UUID       `json:"job_id,omitempty"`
	JobState string           `json:"job_state,omitempty"`
	Error    string           `json:"error,omitempty"`
}
