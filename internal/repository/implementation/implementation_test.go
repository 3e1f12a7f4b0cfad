package implementation_test

import (
	"context"
	"testing"
	"time"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/testdb"
	"llm-knowledge-be/internal/repository/implementation"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResource(name string, state entity.ResourceState) *entity.Resource {
	return &entity.Resource{
		Name:               name,
		Retriever:          "default",
		Parser:             "default",
		Chunker:            "default",
		TargetChunkSize:    200,
		TargetChunkOverlap: 20,
		State:              state,
	}
}

func TestResourceRepository_Lock(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repo := implementation.NewResourceRepository(db)

	a := newResource("a", entity.ResourceStateDraft)
	b := newResource("b", entity.ResourceStateDraft)
	c := newResource("c", entity.ResourceStateParsed)
	for _, r := range []*entity.Resource{a, b, c} {
		require.NoError(t, repo.Create(ctx, r))
	}

	now := time.Now().UTC()
	stale := now.Add(-10 * time.Minute)

	t.Run("claims only matching unlocked rows", func(t *testing.T) {
		claimed, err := repo.Lock(ctx, "worker-1", now, stale, specification.ByState{States: []string{"draft"}})
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		for _, r := range claimed {
			require.NotNil(t, r.LockHolder)
			assert.Equal(t, "worker-1", *r.LockHolder)
		}
	})

	t.Run("second holder gets nothing while locks are fresh", func(t *testing.T) {
		claimed, err := repo.Lock(ctx, "worker-2", now, stale, specification.ByState{States: []string{"draft"}})
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("stale locks can be reclaimed", func(t *testing.T) {
		later := now.Add(11 * time.Minute)
		claimed, err := repo.Lock(ctx, "worker-3", later, later.Add(-10*time.Minute), specification.ByIDs{IDs: []uuid.UUID{a.Id}})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, a.Id, claimed[0].Id)
	})

	t.Run("unlock requires the holder", func(t *testing.T) {
		require.NoError(t, repo.Unlock(ctx, b.Id, "someone-else"))
		got, err := repo.FindOne(ctx, specification.ByID{ID: b.Id})
		require.NoError(t, err)
		assert.NotNil(t, got.LockTimestamp)

		require.NoError(t, repo.Unlock(ctx, b.Id, "worker-1"))
		got, err = repo.FindOne(ctx, specification.ByID{ID: b.Id})
		require.NoError(t, err)
		assert.Nil(t, got.LockTimestamp)
		assert.Nil(t, got.LockHolder)
	})
}

func TestResourceRepository_Membership(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repo := implementation.NewResourceRepository(db)

	r := newResource("doc", entity.ResourceStateDraft)
	require.NoError(t, repo.Create(ctx, r))

	col1, col2 := uuid.New(), uuid.New()
	require.NoError(t, repo.AddToCollection(ctx, r.Id, col1))
	require.NoError(t, repo.AddToCollection(ctx, r.Id, col1))
	require.NoError(t, repo.AddToCollection(ctx, r.Id, col2))

	ids, err := repo.CollectionIDs(ctx, r.Id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{col1, col2}, ids)

	members, err := repo.FindAll(ctx, specification.InCollection{CollectionID: col1})
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, repo.RemoveFromCollection(ctx, r.Id, col1))
	ids, err = repo.ResourceIDs(ctx, col1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestChunkRepository_WithoutChunks(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	resources := implementation.NewResourceRepository(db)
	chunks := implementation.NewChunkRepository(db)

	withChunks := newResource("with", entity.ResourceStateReady)
	without := newResource("without", entity.ResourceStateReady)
	require.NoError(t, resources.Create(ctx, withChunks))
	require.NoError(t, resources.Create(ctx, without))

	batch := []*entity.Chunk{
		{ResourceId: withChunks.Id, Sequence: 0, Content: "one"},
		{ResourceId: withChunks.Id, Sequence: 1, Content: "two", Metadata: map[string]interface{}{"page": float64(2)}},
	}
	require.NoError(t, chunks.CreateBatch(ctx, batch))
	assert.NotEqual(t, uuid.Nil, batch[0].Id)

	orphans, err := resources.FindAll(ctx, specification.WithoutChunks{})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, without.Id, orphans[0].Id)

	stored, err := chunks.FindAll(ctx, specification.ByResourceID{ResourceID: withChunks.Id}, specification.OrderBy{Field: "sequence"})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, float64(2), stored[1].Metadata["page"])

	require.NoError(t, chunks.DeleteByResource(ctx, withChunks.Id))
	count, err := chunks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMessageRepository_Positions(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repo := implementation.NewMessageRepository(db)
	threadID := uuid.New()

	for i := 0; i < 5; i++ {
		msg := &entity.Message{ThreadId: threadID, Role: entity.RoleUser, Body: string(rune('a' + i))}
		require.NoError(t, repo.Create(ctx, msg))
		assert.Equal(t, int64(i+1), msg.Position)
	}

	last, err := repo.LastN(ctx, threadID, 3)
	require.NoError(t, err)
	require.Len(t, last, 3)
	assert.Equal(t, []string{"c", "d", "e"}, []string{last[0].Body, last[1].Body, last[2].Body})

	other, err := repo.LastN(ctx, uuid.New(), 3)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGenerationJobRepository_TransitionState(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repo := implementation.NewGenerationJobRepository(db)

	job := &entity.GenerationJob{
		ThreadId:   uuid.New(),
		ProviderId: uuid.New(),
		ModelId:    uuid.New(),
		State:      entity.JobStateQueued,
		MaxRetries: 3,
	}
	require.NoError(t, repo.Create(ctx, job))

	ok, err := repo.TransitionState(ctx, job.Id, []entity.JobState{entity.JobStateQueued}, map[string]interface{}{
		"state":         string(entity.JobStateRunning),
		"provider_data": map[string]interface{}{"id": "ext-1"},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionState(ctx, job.Id, []entity.JobState{entity.JobStateQueued}, map[string]interface{}{
		"state": string(entity.JobStateRunning),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindOne(ctx, specification.ByID{ID: job.Id})
	require.NoError(t, err)
	assert.Equal(t, entity.JobStateRunning, got.State)
	assert.Equal(t, "ext-1", got.ProviderData["id"])

	n, err := repo.DeleteWhere(ctx, specification.ByState{States: []string{"running"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
