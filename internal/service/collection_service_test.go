package service

import (
	"context"
	"sort"
	"testing"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/vectorstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionService_Create(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()

	t.Run("applies defaults", func(t *testing.T) {
		res, err := env.collections.Create(ctx, &dto.CreateCollectionRequest{
			Name:             "docs",
			EmbeddingModelId: &env.model.Id,
			StoreId:          &env.storeEntity.Id,
		})
		require.NoError(t, err)
		assert.True(t, res.Active)
		assert.Equal(t, "default", res.DefaultChunker)
		assert.Equal(t, "default", res.DefaultParser)
		assert.Equal(t, 200, res.DefaultChunkSize)
		assert.Equal(t, 20, res.DefaultChunkOverlap)
		assert.Equal(t, StoreCollectionName("test", res.Id), res.StoreCollection)
	})

	t.Run("rejects a chat model", func(t *testing.T) {
		uow := env.uowFactory.NewUnitOfWork(ctx)
		chat := &entity.Model{ProviderId: env.provider.Id, Name: "chat", Use: entity.ModelUseChat}
		require.NoError(t, uow.ModelRepository().Create(ctx, chat))

		_, err := env.collections.Create(ctx, &dto.CreateCollectionRequest{Name: "bad", EmbeddingModelId: &chat.Id})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects a missing store", func(t *testing.T) {
		missing := uuid.New()
		_, err := env.collections.Create(ctx, &dto.CreateCollectionRequest{Name: "bad", StoreId: &missing})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestCollectionService_EmbedResources(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	c := env.newCollection(t, "docs")

	first := env.newChunkedResource(t, "first", []string{"alpha one", "alpha two", "beta three"}, c.Id)
	second := env.newChunkedResource(t, "second", []string{"gamma"}, c.Id)

	report, err := env.collections.EmbedResources(ctx, c.Id, nil)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 4, report.ProcessedChunks)
	assert.Equal(t, 2, report.ProcessedResources)
	assert.ElementsMatch(t, []uuid.UUID{first.Id, second.Id}, report.ReadyResourceIds)

	assert.Equal(t, entity.ResourceStateReady, env.resource(t, first.Id).State)
	assert.Equal(t, entity.ResourceStateReady, env.resource(t, second.Id).State)

	name := StoreCollectionName("test", c.Id)
	exists, err := env.store.CollectionExists(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	hits, err := env.store.SearchVectors(ctx, name, vectorstore.Query{Vector: []float32{0, 0, 1, 0, 0, 0}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, second.Id.String(), hits[0].Metadata["resource_id"])
	assert.Equal(t, "second", hits[0].Metadata["resource_name"])

	assert.Contains(t, env.publisher.types(), events.TypeCollectionEmbedded)
}

func TestCollectionService_EmbedResources_FailedBatchKeepsChunked(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	c := env.newCollection(t, "docs")
	r := env.newChunkedResource(t, "doc", []string{"alpha"}, c.Id)

	env.embedder.setErr(errEmbedderDown)
	report, err := env.collections.EmbedResources(ctx, c.Id, nil)
	require.NoError(t, err)
	assert.False(t, report.Success)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, []uuid.UUID{r.Id}, report.Failures[0].ResourceIds)
	assert.Empty(t, report.ReadyResourceIds)
	assert.Equal(t, entity.ResourceStateChunked, env.resource(t, r.Id).State)
}

func TestCollectionService_EmbedResources_PartialFailure(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	c := env.newCollection(t, "docs")

	// two chunks per resource and a batch size of two give one batch per resource
	names := map[uuid.UUID]string{}
	var ids []uuid.UUID
	for _, name := range []string{"north", "south", "east"} {
		r := env.newChunkedResource(t, name, []string{"alpha " + name, "beta " + name}, c.Id)
		names[r.Id] = name
		ids = append(ids, r.Id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	broken := ids[1]
	env.embedder.failText = names[broken]

	report, err := env.collections.EmbedResources(ctx, c.Id, nil)
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Equal(t, 4, report.ProcessedChunks)
	assert.Equal(t, 2, report.ProcessedResources)
	assert.ElementsMatch(t, []uuid.UUID{ids[0], ids[2]}, report.ReadyResourceIds)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Failures[0].Batch)
	assert.Equal(t, []uuid.UUID{broken}, report.Failures[0].ResourceIds)
	assert.Contains(t, report.Failures[0].Error, errEmbedderDown.Error())

	assert.Equal(t, entity.ResourceStateChunked, env.resource(t, broken).State)
	assert.Equal(t, entity.ResourceStateReady, env.resource(t, ids[0]).State)
	assert.Equal(t, entity.ResourceStateReady, env.resource(t, ids[2]).State)

	// a later run picks up only what is left
	env.embedder.failText = ""
	report, err = env.collections.EmbedResources(ctx, c.Id, []uuid.UUID{broken})
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, entity.ResourceStateReady, env.resource(t, broken).State)
}

func TestCollectionService_EmbedResources_RequiresModelAndStore(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()

	res, err := env.collections.Create(ctx, &dto.CreateCollectionRequest{Name: "bare"})
	require.NoError(t, err)

	_, err = env.collections.EmbedResources(ctx, res.Id, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = env.collections.EmbedResources(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionService_Membership(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	first := env.newCollection(t, "first")
	second := env.newCollection(t, "second")

	r := env.newChunkedResource(t, "doc", []string{"alpha"}, first.Id)
	_, err := env.collections.EmbedResources(ctx, first.Id, nil)
	require.NoError(t, err)
	require.Equal(t, entity.ResourceStateReady, env.resource(t, r.Id).State)

	// joining a collection it is not embedded in makes it pending again
	require.NoError(t, env.collections.AddResources(ctx, second.Id, []uuid.UUID{r.Id}))
	assert.Equal(t, entity.ResourceStateChunked, env.resource(t, r.Id).State)

	_, err = env.collections.EmbedResources(ctx, second.Id, []uuid.UUID{r.Id})
	require.NoError(t, err)
	require.Equal(t, entity.ResourceStateReady, env.resource(t, r.Id).State)

	// leaving one of two collections keeps it ready
	require.NoError(t, env.collections.RemoveResources(ctx, second.Id, []uuid.UUID{r.Id}))
	assert.Equal(t, entity.ResourceStateReady, env.resource(t, r.Id).State)

	hits, err := env.store.SearchVectors(ctx, StoreCollectionName("test", second.Id), vectorstore.Query{Vector: []float32{1, 0, 0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Empty(t, hits)

	// deleting its last collection demotes it
	require.NoError(t, env.collections.Delete(ctx, first.Id))
	assert.Equal(t, entity.ResourceStateChunked, env.resource(t, r.Id).State)

	exists, err := env.store.CollectionExists(ctx, StoreCollectionName("test", first.Id))
	require.NoError(t, err)
	assert.False(t, exists)

	err = env.collections.AddResources(ctx, second.Id, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionService_Reindex(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	c := env.newCollection(t, "docs")
	r := env.newChunkedResource(t, "doc", []string{"alpha", "beta"}, c.Id)

	_, err := env.collections.EmbedResources(ctx, c.Id, nil)
	require.NoError(t, err)

	report, err := env.collections.Reindex(ctx, c.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ProcessedChunks)
	assert.Equal(t, []uuid.UUID{r.Id}, report.ReadyResourceIds)
	assert.Equal(t, entity.ResourceStateReady, env.resource(t, r.Id).State)
}

func TestCollectionService_UpdateModelDemotesMembers(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	c := env.newCollection(t, "docs")
	r := env.newChunkedResource(t, "doc", []string{"alpha"}, c.Id)
	_, err := env.collections.EmbedResources(ctx, c.Id, nil)
	require.NoError(t, err)

	uow := env.uowFactory.NewUnitOfWork(ctx)
	other := &entity.Model{ProviderId: env.provider.Id, Name: "embed-2", Use: entity.ModelUseEmbedding}
	require.NoError(t, uow.ModelRepository().Create(ctx, other))

	res, err := env.collections.Update(ctx, &dto.UpdateCollectionRequest{
		Id:               c.Id,
		Name:             "docs",
		EmbeddingModelId: &other.Id,
		StoreId:          &env.storeEntity.Id,
	})
	require.NoError(t, err)
	assert.Equal(t, other.Id, *res.EmbeddingModelId)
	assert.Equal(t, 200, res.DefaultChunkSize)
	assert.Equal(t, entity.ResourceStateChunked, env.resource(t, r.Id).State)

	exists, err := env.store.CollectionExists(ctx, StoreCollectionName("test", c.Id))
	require.NoError(t, err)
	assert.False(t, exists)
}
