package service

import (
	"context"
	"fmt"
	"strings"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/tool"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/prompts"
)

// IAssistantService manages assistants, the presets threads take their
// model, tools, system prompt and tool round limit from.
type IAssistantService interface {
	Create(ctx context.Context, req *dto.AssistantRequest) (*dto.AssistantResponse, error)
	Update(ctx context.Context, req *dto.AssistantRequest) (*dto.AssistantResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Show(ctx context.Context, id uuid.UUID) (*dto.AssistantResponse, error)
	GetAll(ctx context.Context) ([]*dto.AssistantResponse, error)
}

type assistantService struct {
	uowFactory unitofwork.RepositoryFactory
	tools      *tool.Registry
	logger     logger.ILogger
}

func NewAssistantService(uowFactory unitofwork.RepositoryFactory, tools *tool.Registry, log logger.ILogger) IAssistantService {
	return &assistantService{
		uowFactory: uowFactory,
		tools:      tools,
		logger:     log,
	}
}

func (s *assistantService) apply(ctx context.Context, uow unitofwork.UnitOfWork, a *entity.Assistant, req *dto.AssistantRequest) error {
	a.Name = req.Name
	a.ProviderId = req.ProviderId
	a.ModelId = req.ModelId
	a.PromptTemplate = req.PromptTemplate
	if req.Active != nil {
		a.Active = *req.Active
	}
	if req.DefaultValues != nil {
		a.DefaultValues = req.DefaultValues
	}
	if req.ToolNames != nil {
		a.ToolNames = req.ToolNames
	}
	if a.ToolNames == nil {
		a.ToolNames = []string{}
	}
	if req.ToolCallsMax != nil {
		a.ToolCallsMax = *req.ToolCallsMax
	}
	if a.ToolCallsMax <= 0 {
		a.ToolCallsMax = entity.DefaultToolCallsMax
	}

	if err := validateModelSetup(ctx, uow, s.tools, a.ProviderId, a.ModelId, a.ToolNames); err != nil {
		return err
	}
	if _, err := renderAssistantPrompt(a, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *assistantService) Create(ctx context.Context, req *dto.AssistantRequest) (*dto.AssistantResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	a := &entity.Assistant{Active: true}
	if err := s.apply(ctx, uow, a, req); err != nil {
		return nil, err
	}
	if err := uow.AssistantRepository().Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("Assistant", "Assistant created", map[string]interface{}{"assistant_id": a.Id, "model_id": a.ModelId})
	return toAssistantResponse(a), nil
}

func (s *assistantService) find(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) (*entity.Assistant, error) {
	a, err := uow.AssistantRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: assistant %s", ErrNotFound, id)
	}
	return a, nil
}

func (s *assistantService) Update(ctx context.Context, req *dto.AssistantRequest) (*dto.AssistantResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	a, err := s.find(ctx, uow, req.Id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, uow, a, req); err != nil {
		return nil, err
	}
	if err := uow.AssistantRepository().Update(ctx, a); err != nil {
		return nil, err
	}
	return toAssistantResponse(a), nil
}

// Delete refuses while threads still use the assistant.
func (s *assistantService) Delete(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.find(ctx, uow, id); err != nil {
		return err
	}
	threads, err := uow.ThreadRepository().Count(ctx, specification.Filter("assistant_id", id))
	if err != nil {
		return err
	}
	if threads > 0 {
		return fmt.Errorf("%w: assistant is used by %d threads", ErrValidation, threads)
	}
	return uow.AssistantRepository().Delete(ctx, id)
}

func (s *assistantService) Show(ctx context.Context, id uuid.UUID) (*dto.AssistantResponse, error) {
	a, err := s.find(ctx, s.uowFactory.NewUnitOfWork(ctx), id)
	if err != nil {
		return nil, err
	}
	return toAssistantResponse(a), nil
}

func (s *assistantService) GetAll(ctx context.Context) ([]*dto.AssistantResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	assistants, err := uow.AssistantRepository().FindAll(ctx, specification.OrderBy{Field: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]*dto.AssistantResponse, len(assistants))
	for i, a := range assistants {
		out[i] = toAssistantResponse(a)
	}
	return out, nil
}

// validateModelSetup checks a provider, model and tool selection shared by
// threads and assistants.
func validateModelSetup(ctx context.Context, uow unitofwork.UnitOfWork, tools *tool.Registry, providerID, modelID uuid.UUID, toolNames []string) error {
	m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: modelID})
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: model %s does not exist", ErrValidation, modelID)
	}
	if m.ProviderId != providerID {
		return fmt.Errorf("%w: model %s does not belong to provider %s", ErrValidation, m.Name, providerID)
	}
	if m.Use == entity.ModelUseEmbedding {
		return fmt.Errorf("%w: model %s is an embedding model", ErrValidation, m.Name)
	}
	for _, name := range toolNames {
		if _, ok := tools.Get(name); !ok {
			return fmt.Errorf("%w: unknown tool %s", ErrValidation, name)
		}
	}
	return nil
}

// assistantValues merges the assistant defaults under the thread context.
// String defaults holding a template are rendered against that context
// first; one that fails to render is kept as written.
func assistantValues(a *entity.Assistant, thread *entity.Thread) map[string]any {
	base := map[string]any{}
	if thread != nil {
		base["thread_id"] = thread.Id.String()
		base["thread_name"] = thread.Name
	}
	values := make(map[string]any, len(a.DefaultValues)+len(base))
	for k, v := range a.DefaultValues {
		if str, ok := v.(string); ok && strings.Contains(str, "{{") && strings.Contains(str, "}}") {
			if rendered, err := prompts.RenderTemplate(str, prompts.TemplateFormatJinja2, base); err == nil {
				v = rendered
			}
		}
		values[k] = v
	}
	for k, v := range base {
		values[k] = v
	}
	return values
}

// renderAssistantPrompt renders the Jinja2 prompt template of the assistant.
func renderAssistantPrompt(a *entity.Assistant, thread *entity.Thread) (string, error) {
	if strings.TrimSpace(a.PromptTemplate) == "" {
		return "", nil
	}
	out, err := prompts.RenderTemplate(a.PromptTemplate, prompts.TemplateFormatJinja2, assistantValues(a, thread))
	if err != nil {
		return "", fmt.Errorf("render prompt template of assistant %s: %w", a.Name, err)
	}
	return strings.TrimSpace(out), nil
}

func toAssistantResponse(a *entity.Assistant) *dto.AssistantResponse {
	tools := a.ToolNames
	if tools == nil {
		tools = []string{}
	}
	return &dto.AssistantResponse{
		Id:             a.Id,
		Name:           a.Name,
		Active:         a.Active,
		ProviderId:     a.ProviderId,
		ModelId:        a.ModelId,
		PromptTemplate: a.PromptTemplate,
		DefaultValues:  a.DefaultValues,
		ToolNames:      tools,
		ToolCallsMax:   a.ToolCallsMax,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
