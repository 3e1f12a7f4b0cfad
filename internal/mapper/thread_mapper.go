package mapper

import (
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/model"
)

type ThreadMapper struct{}

func NewThreadMapper() *ThreadMapper {
	return &ThreadMapper{}
}

// Thread Mappers

func (m *ThreadMapper) ThreadToEntity(t *model.Thread) *entity.Thread {
	if t == nil {
		return nil
	}
	return &entity.Thread{
		Id:           t.Id,
		Name:         t.Name,
		ProviderId:   t.ProviderId,
		ModelId:      t.ModelId,
		AssistantId:  t.AssistantId,
		SystemPrompt: t.SystemPrompt,
		ToolNames:    toStrings(t.ToolNames),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (m *ThreadMapper) ThreadToModel(t *entity.Thread) *model.Thread {
	if t == nil {
		return nil
	}
	tools := t.ToolNames
	if tools == nil {
		tools = []string{}
	}
	return &model.Thread{
		Id:           t.Id,
		Name:         t.Name,
		ProviderId:   t.ProviderId,
		ModelId:      t.ModelId,
		AssistantId:  t.AssistantId,
		SystemPrompt: t.SystemPrompt,
		ToolNames:    toJSON(tools),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Message Mappers

func (m *ThreadMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}
	return &entity.Message{
		Id:        msg.Id,
		ThreadId:  msg.ThreadId,
		Position:  msg.Position,
		Role:      entity.MessageRole(msg.Role),
		Body:      msg.Body,
		BodyJSON:  toMap(msg.BodyJSON),
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
}

func (m *ThreadMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}
	var body interface{}
	if msg.BodyJSON != nil {
		body = msg.BodyJSON
	}
	return &model.Message{
		Id:        msg.Id,
		ThreadId:  msg.ThreadId,
		Position:  msg.Position,
		Role:      string(msg.Role),
		Body:      msg.Body,
		BodyJSON:  toJSON(body),
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
}

func (m *ThreadMapper) MessagesToEntities(models []*model.Message) []*entity.Message {
	out := make([]*entity.Message, len(models))
	for i, msg := range models {
		out[i] = m.MessageToEntity(msg)
	}
	return out
}
