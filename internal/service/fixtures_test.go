package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/pkg/testdb"
	"llm-knowledge-be/internal/repository/contract"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/embedding"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/generation"
	"llm-knowledge-be/pkg/llm"
	"llm-knowledge-be/pkg/vectorstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var keywordVocabulary = []string{"alpha", "beta", "gamma", "delta", "epsilon"}

// keywordEmbedder maps a text to keyword counts plus a small bias so no
// vector is all zeros.
type keywordEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
	// failText makes any call with a text containing it fail.
	failText string
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	for _, t := range texts {
		if e.failText != "" && strings.Contains(t, e.failText) {
			return nil, errEmbedderDown
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(keywordVocabulary)+1)
		lower := strings.ToLower(t)
		for j, word := range keywordVocabulary {
			v[j] = float32(strings.Count(lower, word))
		}
		v[len(keywordVocabulary)] = 0.01
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// fakeResolver hands out in-process clients keyed by model, store and
// provider id.
type fakeResolver struct {
	db          *gorm.DB
	embedders   map[uuid.UUID]embedding.Embedder
	chats       map[uuid.UUID]llm.LLMProvider
	stores      map[uuid.UUID]vectorstore.Store
	generators  map[uuid.UUID]generation.Generator
	invalidated []uuid.UUID
}

var _ IProviderResolver = (*fakeResolver)(nil)

func newFakeResolver(db *gorm.DB) *fakeResolver {
	return &fakeResolver{
		db:         db,
		embedders:  map[uuid.UUID]embedding.Embedder{},
		chats:      map[uuid.UUID]llm.LLMProvider{},
		stores:     map[uuid.UUID]vectorstore.Store{},
		generators: map[uuid.UUID]generation.Generator{},
	}
}

func (r *fakeResolver) model(ctx context.Context, id uuid.UUID) (*entity.Model, error) {
	uow := unitofwork.NewRepositoryFactory(r.db).NewUnitOfWork(ctx)
	m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

func (r *fakeResolver) ChatProvider(ctx context.Context, modelID uuid.UUID) (llm.LLMProvider, *entity.Model, error) {
	p, ok := r.chats[modelID]
	if !ok {
		return nil, nil, ErrConfiguration
	}
	m, err := r.model(ctx, modelID)
	return p, m, err
}

func (r *fakeResolver) Embedder(ctx context.Context, modelID uuid.UUID) (embedding.Embedder, *entity.Model, error) {
	e, ok := r.embedders[modelID]
	if !ok {
		return nil, nil, ErrConfiguration
	}
	m, err := r.model(ctx, modelID)
	return e, m, err
}

func (r *fakeResolver) Store(_ context.Context, storeID uuid.UUID) (vectorstore.Store, error) {
	s, ok := r.stores[storeID]
	if !ok {
		return nil, ErrConfiguration
	}
	return s, nil
}

func (r *fakeResolver) Generator(_ context.Context, providerID uuid.UUID, _ string) (generation.Generator, error) {
	g, ok := r.generators[providerID]
	if !ok {
		return nil, ErrConfiguration
	}
	return g, nil
}

func (r *fakeResolver) Invalidate(id uuid.UUID) {
	r.invalidated = append(r.invalidated, id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// knowledgeEnv is a migrated database with one embedding model, one memory
// store and the services that sit on top of them.
type knowledgeEnv struct {
	db          *gorm.DB
	uowFactory  unitofwork.RepositoryFactory
	resolver    *fakeResolver
	embedder    *keywordEmbedder
	store       *vectorstore.MemoryStore
	publisher   *recordingPublisher
	cfg         config.KnowledgeConfig
	log         logger.ILogger
	provider    *entity.Provider
	model       *entity.Model
	storeEntity *entity.Store
	collections ICollectionService
}

func newKnowledgeEnv(t *testing.T) *knowledgeEnv {
	t.Helper()
	ctx := context.Background()

	db := testdb.New(t)
	env := &knowledgeEnv{
		db:         db,
		uowFactory: unitofwork.NewRepositoryFactory(db),
		resolver:   newFakeResolver(db),
		embedder:   &keywordEmbedder{},
		store:      vectorstore.NewMemoryStore(),
		publisher:  &recordingPublisher{},
		cfg: config.KnowledgeConfig{
			EmbedBatchSize:       2,
			DefaultMinSimilarity: 0.1,
			DefaultSearchLimit:   10,
			CollectionPrefix:     "test",
			SearchConcurrency:    2,
			SweepWorkers:         2,
		},
		log: logger.NewNopLogger(),
	}

	uow := env.uowFactory.NewUnitOfWork(ctx)
	env.provider = &entity.Provider{Name: "local", Service: "ollama"}
	require.NoError(t, uow.ProviderRepository().Create(ctx, env.provider))
	env.model = &entity.Model{ProviderId: env.provider.Id, Name: "embed", Use: entity.ModelUseEmbedding, Dimensions: len(keywordVocabulary) + 1}
	require.NoError(t, uow.ModelRepository().Create(ctx, env.model))
	env.storeEntity = &entity.Store{Name: "mem", Service: entity.StoreServiceMemory, Active: true}
	require.NoError(t, uow.StoreRepository().Create(ctx, env.storeEntity))

	env.resolver.embedders[env.model.Id] = env.embedder
	env.resolver.stores[env.storeEntity.Id] = env.store

	env.collections = NewCollectionService(env.uowFactory, env.resolver, env.publisher, env.cfg, env.log)
	return env
}

// newCollection creates an active collection bound to the env model and store.
func (e *knowledgeEnv) newCollection(t *testing.T, name string) *entity.Collection {
	t.Helper()
	ctx := context.Background()
	c := &entity.Collection{
		Name:                name,
		Active:              true,
		EmbeddingModelId:    &e.model.Id,
		StoreId:             &e.storeEntity.Id,
		DefaultChunker:      "default",
		DefaultParser:       "default",
		DefaultChunkSize:    200,
		DefaultChunkOverlap: 0,
	}
	require.NoError(t, e.uowFactory.NewUnitOfWork(ctx).CollectionRepository().Create(ctx, c))
	return c
}

// newChunkedResource stores a chunked resource with one chunk per text.
func (e *knowledgeEnv) newChunkedResource(t *testing.T, name string, texts []string, collectionIDs ...uuid.UUID) *entity.Resource {
	t.Helper()
	ctx := context.Background()
	uow := e.uowFactory.NewUnitOfWork(ctx)

	r := &entity.Resource{
		Name:    name,
		Content: strings.Join(texts, "\n\n"),
		State:   entity.ResourceStateChunked,
	}
	require.NoError(t, uow.ResourceRepository().Create(ctx, r))

	chunks := make([]*entity.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &entity.Chunk{ResourceId: r.Id, Sequence: i + 1, Content: text}
	}
	require.NoError(t, uow.ChunkRepository().CreateBatch(ctx, chunks))

	for _, cid := range collectionIDs {
		require.NoError(t, uow.ResourceRepository().AddToCollection(ctx, r.Id, cid))
	}
	return r
}

func (e *knowledgeEnv) resource(t *testing.T, id uuid.UUID) *entity.Resource {
	t.Helper()
	ctx := context.Background()
	r, err := e.uowFactory.NewUnitOfWork(ctx).ResourceRepository().FindOne(ctx, specification.ByID{ID: id})
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

var errEmbedderDown = errors.New("embedder down")

// faultyFactory wraps a repository factory so a test can fail selected
// writes while everything else reaches the database.
type faultyFactory struct {
	unitofwork.RepositoryFactory
	failTransition func(fields map[string]interface{}) error
	failMessage    func(msg *entity.Message) error
}

func (f *faultyFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &faultyUnitOfWork{UnitOfWork: f.RepositoryFactory.NewUnitOfWork(ctx), f: f}
}

type faultyUnitOfWork struct {
	unitofwork.UnitOfWork
	f *faultyFactory
}

func (u *faultyUnitOfWork) GenerationJobRepository() contract.GenerationJobRepository {
	return &faultyJobRepository{GenerationJobRepository: u.UnitOfWork.GenerationJobRepository(), f: u.f}
}

func (u *faultyUnitOfWork) MessageRepository() contract.MessageRepository {
	return &faultyMessageRepository{MessageRepository: u.UnitOfWork.MessageRepository(), f: u.f}
}

type faultyJobRepository struct {
	contract.GenerationJobRepository
	f *faultyFactory
}

func (r *faultyJobRepository) TransitionState(ctx context.Context, id uuid.UUID, from []entity.JobState, fields map[string]interface{}) (bool, error) {
	if r.f.failTransition != nil {
		if err := r.f.failTransition(fields); err != nil {
			return false, err
		}
	}
	return r.GenerationJobRepository.TransitionState(ctx, id, from, fields)
}

type faultyMessageRepository struct {
	contract.MessageRepository
	f *faultyFactory
}

func (r *faultyMessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	if r.f.failMessage != nil {
		if err := r.f.failMessage(msg); err != nil {
			return err
		}
	}
	return r.MessageRepository.Create(ctx, msg)
}
