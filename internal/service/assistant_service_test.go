package service

import (
	"context"
	"testing"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssistantService_CreateValidation(t *testing.T) {
	env := newThreadEnv(t)
	assistants := NewAssistantService(env.uowFactory, env.tools, env.log)
	ctx := context.Background()

	tests := []struct {
		name string
		req  dto.AssistantRequest
	}{
		{"unknown tool", dto.AssistantRequest{Name: "a", ProviderId: env.provider.Id, ModelId: env.chat.Id, ToolNames: []string{"teleport"}}},
		{"embedding model", dto.AssistantRequest{Name: "a", ProviderId: env.provider.Id, ModelId: env.embedder.Id}},
		{"foreign provider", dto.AssistantRequest{Name: "a", ProviderId: uuid.New(), ModelId: env.chat.Id}},
		{"broken template", dto.AssistantRequest{Name: "a", ProviderId: env.provider.Id, ModelId: env.chat.Id, PromptTemplate: "Hello {{ name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assistants.Create(ctx, &tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAssistantService_Defaults(t *testing.T) {
	env := newThreadEnv(t)
	assistants := NewAssistantService(env.uowFactory, env.tools, env.log)
	ctx := context.Background()

	a, err := assistants.Create(ctx, &dto.AssistantRequest{Name: "plain", ProviderId: env.provider.Id, ModelId: env.chat.Id})
	require.NoError(t, err)
	assert.True(t, a.Active)
	assert.Equal(t, entity.DefaultToolCallsMax, a.ToolCallsMax)
	assert.Equal(t, []string{}, a.ToolNames)

	shown, err := assistants.Show(ctx, a.Id)
	require.NoError(t, err)
	assert.Equal(t, a.Name, shown.Name)
	assert.True(t, shown.Active)

	_, err = assistants.Show(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssistantService_DeleteInUse(t *testing.T) {
	env := newThreadEnv(t)
	assistants := NewAssistantService(env.uowFactory, env.tools, env.log)
	ctx := context.Background()

	a, err := assistants.Create(ctx, &dto.AssistantRequest{Name: "helper", ProviderId: env.provider.Id, ModelId: env.chat.Id})
	require.NoError(t, err)
	th, err := env.threads.Create(ctx, &dto.CreateThreadRequest{Name: "uses it", AssistantId: &a.Id})
	require.NoError(t, err)

	assert.ErrorIs(t, assistants.Delete(ctx, a.Id), ErrValidation)

	require.NoError(t, env.threads.Delete(ctx, th.Id))
	require.NoError(t, assistants.Delete(ctx, a.Id))
	all, err := assistants.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRenderAssistantPrompt(t *testing.T) {
	thread := &entity.Thread{Id: uuid.New(), Name: "lab"}
	tests := []struct {
		name      string
		assistant entity.Assistant
		want      string
	}{
		{"empty template", entity.Assistant{}, ""},
		{"thread values", entity.Assistant{PromptTemplate: "  In {{ thread_name }}.  "}, "In lab."},
		{"defaults", entity.Assistant{PromptTemplate: "Tone: {{ tone }}", DefaultValues: map[string]interface{}{"tone": "dry"}}, "Tone: dry"},
		{"templated default", entity.Assistant{PromptTemplate: "{{ intro }}", DefaultValues: map[string]interface{}{"intro": "Notes of {{ thread_name }}"}}, "Notes of lab"},
		{"thread values win", entity.Assistant{PromptTemplate: "{{ thread_name }}", DefaultValues: map[string]interface{}{"thread_name": "other"}}, "lab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderAssistantPrompt(&tt.assistant, thread)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
