package service

import (
	"context"
	"encoding/json"
	"fmt"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/tool"

	"github.com/google/uuid"
)

// ICatalogService manages the providers, models and vector stores the rest
// of the system resolves clients from.
type ICatalogService interface {
	CreateProvider(ctx context.Context, req *dto.ProviderRequest) (*dto.ProviderResponse, error)
	UpdateProvider(ctx context.Context, req *dto.ProviderRequest) (*dto.ProviderResponse, error)
	DeleteProvider(ctx context.Context, id uuid.UUID) error
	ListProviders(ctx context.Context) ([]*dto.ProviderResponse, error)

	CreateModel(ctx context.Context, req *dto.ModelRequest) (*dto.ModelResponse, error)
	UpdateModel(ctx context.Context, req *dto.ModelRequest) (*dto.ModelResponse, error)
	DeleteModel(ctx context.Context, id uuid.UUID) error
	ListModels(ctx context.Context, use string) ([]*dto.ModelResponse, error)

	CreateStore(ctx context.Context, req *dto.StoreRequest) (*dto.StoreResponse, error)
	UpdateStore(ctx context.Context, req *dto.StoreRequest) (*dto.StoreResponse, error)
	DeleteStore(ctx context.Context, id uuid.UUID) error
	ListStores(ctx context.Context) ([]*dto.StoreResponse, error)
	ShowStore(ctx context.Context, id uuid.UUID) (*dto.StoreResponse, error)

	ListTools(ctx context.Context) []*dto.ToolResponse
}

type catalogService struct {
	uowFactory unitofwork.RepositoryFactory
	resolver   IProviderResolver
	tools      *tool.Registry
	logger     logger.ILogger
}

func NewCatalogService(
	uowFactory unitofwork.RepositoryFactory,
	resolver IProviderResolver,
	tools *tool.Registry,
	log logger.ILogger,
) ICatalogService {
	return &catalogService{
		uowFactory: uowFactory,
		resolver:   resolver,
		tools:      tools,
		logger:     log,
	}
}

// Providers

func (s *catalogService) CreateProvider(ctx context.Context, req *dto.ProviderRequest) (*dto.ProviderResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	p := &entity.Provider{
		Name:    req.Name,
		Service: req.Service,
		BaseURL: req.BaseURL,
		APIKey:  req.APIKey,
	}
	if err := uow.ProviderRepository().Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Catalog", "Provider created", map[string]interface{}{"provider_id": p.Id, "service": p.Service})
	return toProviderResponse(p), nil
}

func (s *catalogService) UpdateProvider(ctx context.Context, req *dto.ProviderRequest) (*dto.ProviderResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	p, err := uow.ProviderRepository().FindOne(ctx, specification.ByID{ID: req.Id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: provider %s", ErrNotFound, req.Id)
	}
	p.Name = req.Name
	p.Service = req.Service
	p.BaseURL = req.BaseURL
	// An empty key keeps the stored one.
	if req.APIKey != "" {
		p.APIKey = req.APIKey
	}
	if err := uow.ProviderRepository().Update(ctx, p); err != nil {
		return nil, err
	}
	s.resolver.Invalidate(p.Id)
	return toProviderResponse(p), nil
}

func (s *catalogService) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	models, err := uow.ModelRepository().FindAll(ctx, specification.ByProviderID{ProviderID: id})
	if err != nil {
		return err
	}
	if len(models) > 0 {
		return fmt.Errorf("%w: provider still has %d models", ErrValidation, len(models))
	}
	if err := uow.ProviderRepository().Delete(ctx, id); err != nil {
		return err
	}
	s.resolver.Invalidate(id)
	return nil
}

func (s *catalogService) ListProviders(ctx context.Context) ([]*dto.ProviderResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	providers, err := uow.ProviderRepository().FindAll(ctx, specification.OrderBy{Field: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ProviderResponse, len(providers))
	for i, p := range providers {
		out[i] = toProviderResponse(p)
	}
	return out, nil
}

// Models

func (s *catalogService) CreateModel(ctx context.Context, req *dto.ModelRequest) (*dto.ModelResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := s.requireProvider(ctx, uow, req.ProviderId); err != nil {
		return nil, err
	}
	m := &entity.Model{
		ProviderId:        req.ProviderId,
		Name:              req.Name,
		Use:               entity.ModelUse(req.Use),
		SupportsStreaming: req.SupportsStreaming == nil || *req.SupportsStreaming,
		Dimensions:        req.Dimensions,
	}
	if err := uow.ModelRepository().Create(ctx, m); err != nil {
		return nil, err
	}
	return toModelResponse(m), nil
}

func (s *catalogService) requireProvider(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) error {
	p, err := uow.ProviderRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: provider %s does not exist", ErrValidation, id)
	}
	return nil
}

func (s *catalogService) UpdateModel(ctx context.Context, req *dto.ModelRequest) (*dto.ModelResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: req.Id})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, req.Id)
	}
	if err := s.requireProvider(ctx, uow, req.ProviderId); err != nil {
		return nil, err
	}
	m.ProviderId = req.ProviderId
	m.Name = req.Name
	m.Use = entity.ModelUse(req.Use)
	if req.SupportsStreaming != nil {
		m.SupportsStreaming = *req.SupportsStreaming
	}
	m.Dimensions = req.Dimensions
	if err := uow.ModelRepository().Update(ctx, m); err != nil {
		return nil, err
	}
	s.resolver.Invalidate(m.Id)
	return toModelResponse(m), nil
}

func (s *catalogService) DeleteModel(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	used, err := uow.CollectionRepository().Count(ctx, specification.ByEmbeddingModelID{ModelID: id})
	if err != nil {
		return err
	}
	if used > 0 {
		return fmt.Errorf("%w: model is used by %d collections", ErrValidation, used)
	}
	threads, err := uow.ThreadRepository().Count(ctx, specification.Filter("model_id", id))
	if err != nil {
		return err
	}
	if threads > 0 {
		return fmt.Errorf("%w: model is used by %d threads", ErrValidation, threads)
	}
	if err := uow.ModelRepository().Delete(ctx, id); err != nil {
		return err
	}
	s.resolver.Invalidate(id)
	return nil
}

func (s *catalogService) ListModels(ctx context.Context, use string) ([]*dto.ModelResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	specs := []specification.Specification{specification.OrderBy{Field: "name"}}
	if use != "" {
		specs = append(specs, specification.ByModelUse{Use: use})
	}
	models, err := uow.ModelRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ModelResponse, len(models))
	for i, m := range models {
		out[i] = toModelResponse(m)
	}
	return out, nil
}

// Stores

func (s *catalogService) CreateStore(ctx context.Context, req *dto.StoreRequest) (*dto.StoreResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	st := &entity.Store{
		Name:          req.Name,
		Service:       entity.StoreService(req.Service),
		ConnectionURI: req.ConnectionURI,
		APIKey:        req.APIKey,
		Active:        req.Active == nil || *req.Active,
		Metadata:      req.Metadata,
	}
	if err := uow.StoreRepository().Create(ctx, st); err != nil {
		return nil, err
	}
	return toStoreResponse(st, nil), nil
}

func (s *catalogService) UpdateStore(ctx context.Context, req *dto.StoreRequest) (*dto.StoreResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	st, err := uow.StoreRepository().FindOne(ctx, specification.ByID{ID: req.Id})
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: store %s", ErrNotFound, req.Id)
	}
	st.Name = req.Name
	st.Service = entity.StoreService(req.Service)
	st.ConnectionURI = req.ConnectionURI
	if req.APIKey != "" {
		st.APIKey = req.APIKey
	}
	if req.Active != nil {
		st.Active = *req.Active
	}
	if req.Metadata != nil {
		st.Metadata = req.Metadata
	}
	if err := uow.StoreRepository().Update(ctx, st); err != nil {
		return nil, err
	}
	s.resolver.Invalidate(st.Id)
	return toStoreResponse(st, nil), nil
}

func (s *catalogService) DeleteStore(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	used, err := uow.CollectionRepository().Count(ctx, specification.ByStoreID{StoreID: id})
	if err != nil {
		return err
	}
	if used > 0 {
		return fmt.Errorf("%w: store is used by %d collections", ErrValidation, used)
	}
	if err := uow.StoreRepository().Delete(ctx, id); err != nil {
		return err
	}
	s.resolver.Invalidate(id)
	return nil
}

func (s *catalogService) ListStores(ctx context.Context) ([]*dto.StoreResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	stores, err := uow.StoreRepository().FindAll(ctx, specification.OrderBy{Field: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]*dto.StoreResponse, len(stores))
	for i, st := range stores {
		out[i] = toStoreResponse(st, nil)
	}
	return out, nil
}

// ShowStore includes the backend's collection names when the store is
// reachable.
func (s *catalogService) ShowStore(ctx context.Context, id uuid.UUID) (*dto.StoreResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	st, err := uow.StoreRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: store %s", ErrNotFound, id)
	}
	var names []string
	if st.Active {
		backend, err := s.resolver.Store(ctx, id)
		if err == nil {
			names, err = backend.ListCollections(ctx)
		}
		if err != nil {
			s.logger.Warn("Catalog", "Failed to list store collections", map[string]interface{}{
				"store_id": id,
				"error":    err.Error(),
			})
		}
	}
	return toStoreResponse(st, names), nil
}

func (s *catalogService) ListTools(_ context.Context) []*dto.ToolResponse {
	names := s.tools.Names()
	out := make([]*dto.ToolResponse, 0, len(names))
	for _, def := range s.tools.Definitions(names) {
		var params interface{}
		if err := json.Unmarshal(def.Function.Parameters, &params); err != nil {
			params = nil
		}
		out = append(out, &dto.ToolResponse{
			Name:        def.Function.Name,
			Description: def.Function.Description,
			Parameters:  params,
		})
	}
	return out
}

func toProviderResponse(p *entity.Provider) *dto.ProviderResponse {
	return &dto.ProviderResponse{
		Id:        p.Id,
		Name:      p.Name,
		Service:   p.Service,
		BaseURL:   p.BaseURL,
		HasAPIKey: p.APIKey != "",
		CreatedAt: p.CreatedAt,
	}
}

func toModelResponse(m *entity.Model) *dto.ModelResponse {
	return &dto.ModelResponse{
		Id:                m.Id,
		ProviderId:        m.ProviderId,
		Name:              m.Name,
		Use:               string(m.Use),
		SupportsStreaming: m.SupportsStreaming,
		Dimensions:        m.Dimensions,
		CreatedAt:         m.CreatedAt,
	}
}

func toStoreResponse(st *entity.Store, collections []string) *dto.StoreResponse {
	return &dto.StoreResponse{
		Id:            st.Id,
		Name:          st.Name,
		Service:       string(st.Service),
		ConnectionURI: st.ConnectionURI,
		Active:        st.Active,
		Metadata:      st.Metadata,
		Collections:   collections,
		CreatedAt:     st.CreatedAt,
	}
}
