package service

import (
	"context"
	"fmt"
	"time"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/embedding"
	embeddingFactory "llm-knowledge-be/pkg/embedding/factory"
	"llm-knowledge-be/pkg/generation"
	"llm-knowledge-be/pkg/llm"
	llmFactory "llm-knowledge-be/pkg/llm/factory"
	"llm-knowledge-be/pkg/vectorstore"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// IProviderResolver turns catalog rows into live clients.
type IProviderResolver interface {
	ChatProvider(ctx context.Context, modelID uuid.UUID) (llm.LLMProvider, *entity.Model, error)
	Embedder(ctx context.Context, modelID uuid.UUID) (embedding.Embedder, *entity.Model, error)
	Store(ctx context.Context, storeID uuid.UUID) (vectorstore.Store, error)
	Generator(ctx context.Context, providerID uuid.UUID, webhookURL string) (generation.Generator, error)
	Invalidate(id uuid.UUID)
}

type providerResolver struct {
	uowFactory unitofwork.RepositoryFactory
	db         *gorm.DB
	cfg        config.KnowledgeConfig
	clients    *cache.Cache // chat providers and embedders, keyed by model id
	stores     *cache.Cache // vector stores, keyed by store id
}

func NewProviderResolver(uowFactory unitofwork.RepositoryFactory, db *gorm.DB, cfg config.KnowledgeConfig) IProviderResolver {
	return &providerResolver{
		uowFactory: uowFactory,
		db:         db,
		cfg:        cfg,
		clients:    cache.New(30*time.Minute, 10*time.Minute),
		// Memory stores hold their data in the client, so stores never expire.
		stores: cache.New(cache.NoExpiration, 0),
	}
}

func (r *providerResolver) loadModel(ctx context.Context, modelID uuid.UUID) (*entity.Model, *entity.Provider, error) {
	uow := r.uowFactory.NewUnitOfWork(ctx)
	m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: modelID})
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, fmt.Errorf("%w: model %s", ErrNotFound, modelID)
	}
	p, err := uow.ProviderRepository().FindOne(ctx, specification.ByID{ID: m.ProviderId})
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, fmt.Errorf("%w: provider %s of model %s is missing", ErrConfiguration, m.ProviderId, m.Name)
	}
	return m, p, nil
}

type cachedChat struct {
	provider llm.LLMProvider
	model    *entity.Model
}

func (r *providerResolver) ChatProvider(ctx context.Context, modelID uuid.UUID) (llm.LLMProvider, *entity.Model, error) {
	key := "chat:" + modelID.String()
	if v, ok := r.clients.Get(key); ok {
		c := v.(cachedChat)
		return c.provider, c.model, nil
	}

	m, p, err := r.loadModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	provider, err := llmFactory.NewLLMProvider(p.Service, m.Name, p.BaseURL, p.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	r.clients.Set(key, cachedChat{provider: provider, model: m}, cache.DefaultExpiration)
	return provider, m, nil
}

type cachedEmbedder struct {
	embedder embedding.Embedder
	model    *entity.Model
}

func (r *providerResolver) Embedder(ctx context.Context, modelID uuid.UUID) (embedding.Embedder, *entity.Model, error) {
	key := "embed:" + modelID.String()
	if v, ok := r.clients.Get(key); ok {
		c := v.(cachedEmbedder)
		return c.embedder, c.model, nil
	}

	m, p, err := r.loadModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if m.Use != entity.ModelUseEmbedding {
		return nil, nil, fmt.Errorf("%w: model %s is not an embedding model", ErrConfiguration, m.Name)
	}
	e, err := embeddingFactory.NewEmbedder(embedding.Config{
		Service: p.Service,
		BaseURL: p.BaseURL,
		APIKey:  p.APIKey,
		Model:   m.Name,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if r.cfg.EmbedRatePerSecond > 0 {
		e = embedding.NewRateLimited(e, r.cfg.EmbedRatePerSecond, int(r.cfg.EmbedRatePerSecond)+1)
	}
	if r.cfg.QueryCacheTTL > 0 {
		e = embedding.NewCached(e, m.Id.String(), r.cfg.QueryCacheTTL)
	}
	r.clients.Set(key, cachedEmbedder{embedder: e, model: m}, cache.DefaultExpiration)
	return e, m, nil
}

func (r *providerResolver) Store(ctx context.Context, storeID uuid.UUID) (vectorstore.Store, error) {
	if v, ok := r.stores.Get(storeID.String()); ok {
		return v.(vectorstore.Store), nil
	}

	uow := r.uowFactory.NewUnitOfWork(ctx)
	s, err := uow.StoreRepository().FindOne(ctx, specification.ByID{ID: storeID})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: store %s", ErrNotFound, storeID)
	}
	if !s.Active {
		return nil, fmt.Errorf("%w: store %s is inactive", ErrConfiguration, s.Name)
	}

	indexMethod, _ := s.Metadata["index_method"].(string)
	store, err := vectorstore.Open(vectorstore.BackendConfig{
		Service:       string(s.Service),
		ConnectionURI: s.ConnectionURI,
		APIKey:        s.APIKey,
		IndexMethod:   indexMethod,
	}, r.db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	r.stores.Set(storeID.String(), store, cache.NoExpiration)
	return store, nil
}

func (r *providerResolver) Generator(ctx context.Context, providerID uuid.UUID, webhookURL string) (generation.Generator, error) {
	uow := r.uowFactory.NewUnitOfWork(ctx)
	p, err := uow.ProviderRepository().FindOne(ctx, specification.ByID{ID: providerID})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: provider %s", ErrNotFound, providerID)
	}
	if p.BaseURL == "" {
		return nil, fmt.Errorf("%w: provider %s has no base url", ErrConfiguration, p.Name)
	}
	return generation.NewHTTPGenerator(p.BaseURL, p.APIKey, webhookURL), nil
}

// Invalidate is called after a catalog row changed. Clients are cheap to
// rebuild so all of them are dropped; only the matching store is dropped.
func (r *providerResolver) Invalidate(id uuid.UUID) {
	r.clients.Flush()
	r.stores.Delete(id.String())
}
