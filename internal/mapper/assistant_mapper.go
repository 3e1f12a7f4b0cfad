package mapper

import (
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/model"
)

type AssistantMapper struct{}

func NewAssistantMapper() *AssistantMapper {
	return &AssistantMapper{}
}

func (m *AssistantMapper) AssistantToEntity(a *model.Assistant) *entity.Assistant {
	if a == nil {
		return nil
	}
	return &entity.Assistant{
		Id:             a.Id,
		Name:           a.Name,
		Active:         a.Active,
		ProviderId:     a.ProviderId,
		ModelId:        a.ModelId,
		PromptTemplate: a.PromptTemplate,
		DefaultValues:  toMap(a.DefaultValues),
		ToolNames:      toStrings(a.ToolNames),
		ToolCallsMax:   a.ToolCallsMax,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (m *AssistantMapper) AssistantToModel(a *entity.Assistant) *model.Assistant {
	if a == nil {
		return nil
	}
	tools := a.ToolNames
	if tools == nil {
		tools = []string{}
	}
	var defaults interface{}
	if a.DefaultValues != nil {
		defaults = a.DefaultValues
	}
	return &model.Assistant{
		Id:             a.Id,
		Name:           a.Name,
		Active:         a.Active,
		ProviderId:     a.ProviderId,
		ModelId:        a.ModelId,
		PromptTemplate: a.PromptTemplate,
		DefaultValues:  toJSON(defaults),
		ToolNames:      toJSON(tools),
		ToolCallsMax:   a.ToolCallsMax,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
