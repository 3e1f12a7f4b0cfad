package entity

import (
	"time"

	"github.com/google/uuid"
)

type Thread struct {
	Id           uuid.UUID
	Name         string
	ProviderId   uuid.UUID
	ModelId      uuid.UUID
	AssistantId  *uuid.UUID
	SystemPrompt string
	ToolNames    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
	RoleSystem    MessageRole = "system"
)

type Message struct {
	Id        uuid.UUID
	ThreadId  uuid.UUID
	Position  int64
	Role      MessageRole
	Body      string
	BodyJSON  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToolCalls returns the tool_calls list stored on an assistant message.
func (m *Message) ToolCalls() []interface{} {
	if m.BodyJSON == nil {
		return nil
	}
	calls, _ := m.BodyJSON["tool_calls"].([]interface{})
	return calls
}
