package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/pkg/chunker"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/parser"
	"llm-knowledge-be/pkg/retriever"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, env *knowledgeEnv) IPipelineService {
	t.Helper()
	p, err := NewPipelineService(
		env.uowFactory,
		retriever.NewDefaultRegistry(retriever.NewHTTPRetriever(time.Second, 0), retriever.NewFileRetriever(t.TempDir(), 0)),
		parser.NewDefaultRegistry(),
		chunker.NewDefaultRegistry(),
		env.collections,
		env.publisher,
		env.cfg,
		env.log,
	)
	require.NoError(t, err)
	return p
}

func (e *knowledgeEnv) newDraft(t *testing.T, name, content string, collectionIDs ...uuid.UUID) *entity.Resource {
	t.Helper()
	ctx := context.Background()
	uow := e.uowFactory.NewUnitOfWork(ctx)
	r := &entity.Resource{
		Name:        name,
		ContentType: "text/plain",
		RawContent:  []byte(content),
		State:       entity.ResourceStateDraft,
	}
	require.NoError(t, uow.ResourceRepository().Create(ctx, r))
	for _, cid := range collectionIDs {
		require.NoError(t, uow.ResourceRepository().AddToCollection(ctx, r.Id, cid))
	}
	return r
}

func TestPipelineService_Process(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	pipeline := newTestPipeline(t, env)
	c := env.newCollection(t, "docs")

	member := env.newDraft(t, "member.txt", "Alpha is the first letter. Beta follows it.", c.Id)
	loose := env.newDraft(t, "loose.txt", "Gamma stands alone.")

	report, err := pipeline.Process(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, report.Retrieved)
	assert.Equal(t, 2, report.Parsed)
	assert.Equal(t, 2, report.Chunked)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, 1, report.Skipped)

	got := env.resource(t, member.Id)
	assert.Equal(t, entity.ResourceStateReady, got.State)
	assert.Contains(t, got.Content, "Alpha is the first letter.")
	assert.Nil(t, got.LockHolder)
	assert.Equal(t, entity.ResourceStateChunked, env.resource(t, loose.Id).State)

	chunks, err := env.uowFactory.NewUnitOfWork(ctx).ChunkRepository().FindAll(ctx,
		specification.ByResourceID{ResourceID: member.Id},
		specification.OrderBy{Field: "sequence"},
	)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].Sequence)

	assert.Contains(t, env.publisher.types(), events.TypeResourceStateChanged)
}

func TestPipelineService_FailureIsRecorded(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	pipeline := newTestPipeline(t, env)

	bad := env.newDraft(t, "bad.txt", "content")
	require.NoError(t, env.uowFactory.NewUnitOfWork(ctx).ResourceRepository().UpdateFields(ctx, bad.Id, map[string]interface{}{
		"retriever": "carrier-pigeon",
	}))
	good := env.newDraft(t, "good.txt", "Delta content here.")

	report, err := pipeline.Retrieve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retrieved)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad.Id, report.Failures[0].ResourceId)
	assert.Equal(t, StageRetrieve, report.Failures[0].Stage)

	failed := env.resource(t, bad.Id)
	assert.Equal(t, entity.ResourceStateDraft, failed.State)
	assert.True(t, strings.HasPrefix(failed.LastError, "retrieve: "))
	assert.Nil(t, failed.LockHolder)
	assert.Equal(t, entity.ResourceStateRetrieved, env.resource(t, good.Id).State)
}

func TestPipelineService_RespectsLocks(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	pipeline := newTestPipeline(t, env)
	repo := env.uowFactory.NewUnitOfWork(ctx).ResourceRepository()

	held := env.newDraft(t, "held.txt", "Alpha.")
	stale := env.newDraft(t, "stale.txt", "Beta.")

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateFields(ctx, held.Id, map[string]interface{}{
		"lock_timestamp": now,
		"lock_holder":    "someone-else",
	}))
	require.NoError(t, repo.UpdateFields(ctx, stale.Id, map[string]interface{}{
		"lock_timestamp": now.Add(-time.Hour),
		"lock_holder":    "crashed-worker",
	}))

	report, err := pipeline.Retrieve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retrieved)
	assert.Equal(t, entity.ResourceStateDraft, env.resource(t, held.Id).State)
	assert.Equal(t, entity.ResourceStateRetrieved, env.resource(t, stale.Id).State)

	require.NoError(t, pipeline.Unlock(ctx, []uuid.UUID{held.Id}))
	assert.Nil(t, env.resource(t, held.Id).LockHolder)

	report, err = pipeline.Retrieve(ctx, []uuid.UUID{held.Id})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retrieved)
}

func TestPipelineService_ResetAndRechunk(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	pipeline := newTestPipeline(t, env)
	c := env.newCollection(t, "docs")

	r := env.newDraft(t, "doc.txt", "Epsilon is small.", c.Id)
	_, err := pipeline.Process(ctx, []uuid.UUID{r.Id})
	require.NoError(t, err)
	require.Equal(t, entity.ResourceStateReady, env.resource(t, r.Id).State)

	// a ready resource whose chunks vanished goes back through chunking
	require.NoError(t, env.uowFactory.NewUnitOfWork(ctx).ChunkRepository().DeleteByResource(ctx, r.Id))
	report, err := pipeline.Process(ctx, []uuid.UUID{r.Id})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reset)
	assert.Equal(t, 1, report.Chunked)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, entity.ResourceStateReady, env.resource(t, r.Id).State)

	require.NoError(t, pipeline.Reset(ctx, []uuid.UUID{r.Id}))
	assert.Equal(t, entity.ResourceStateDraft, env.resource(t, r.Id).State)
}

func TestPipelineService_ResetRespectsLocks(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	pipeline := newTestPipeline(t, env)
	c := env.newCollection(t, "docs")
	repo := env.uowFactory.NewUnitOfWork(ctx).ResourceRepository()

	r := env.newDraft(t, "doc.txt", "Delta moves slowly.", c.Id)
	_, err := pipeline.Process(ctx, []uuid.UUID{r.Id})
	require.NoError(t, err)
	require.NoError(t, env.uowFactory.NewUnitOfWork(ctx).ChunkRepository().DeleteByResource(ctx, r.Id))

	require.NoError(t, repo.UpdateFields(ctx, r.Id, map[string]interface{}{
		"lock_timestamp": time.Now().UTC(),
		"lock_holder":    "someone-else",
	}))
	report, err := pipeline.Process(ctx, []uuid.UUID{r.Id})
	require.NoError(t, err)
	assert.Zero(t, report.Reset)
	got := env.resource(t, r.Id)
	assert.Equal(t, entity.ResourceStateReady, got.State)
	require.NotNil(t, got.LockHolder)
	assert.Equal(t, "someone-else", *got.LockHolder)

	require.NoError(t, pipeline.Unlock(ctx, []uuid.UUID{r.Id}))
	report, err = pipeline.Process(ctx, []uuid.UUID{r.Id})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reset)
	assert.Equal(t, 1, report.Chunked)
	got = env.resource(t, r.Id)
	assert.Equal(t, entity.ResourceStateReady, got.State)
	assert.Nil(t, got.LockHolder)
}

func TestPipelineService_ConcurrentProcessClaimsDisjointSets(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	pipeline := newTestPipeline(t, env)
	c := env.newCollection(t, "docs")

	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = env.newDraft(t, fmt.Sprintf("doc-%d.txt", i), "Alpha and gamma.", c.Id).Id
	}

	reports := make([]*dto.PipelineReport, 2)
	var wg sync.WaitGroup
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, err := pipeline.Process(ctx, nil)
			assert.NoError(t, err)
			reports[i] = report
		}(i)
	}
	wg.Wait()

	total := &dto.PipelineReport{Failures: []dto.ResourceFailure{}}
	for _, r := range reports {
		require.NotNil(t, r)
		total.Merge(r)
	}
	assert.Empty(t, total.Failures)
	assert.Equal(t, len(ids), total.Retrieved)
	assert.Equal(t, len(ids), total.Parsed)
	assert.Equal(t, len(ids), total.Chunked)
	assert.Equal(t, len(ids), total.Embedded)

	// every transition of a resource happened exactly once
	seen := map[string]int{}
	for _, ev := range env.publisher.snapshot() {
		if ev.EventType() != events.TypeResourceStateChanged {
			continue
		}
		p := ev.Payload()
		seen[fmt.Sprintf("%v %v>%v", p["resource_id"], p["from"], p["to"])]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, key)
	}
	for _, id := range ids {
		assert.Equal(t, entity.ResourceStateReady, env.resource(t, id).State)
	}
}

func TestPipelineService_ProcessIsIdempotent(t *testing.T) {
	env := newKnowledgeEnv(t)
	ctx := context.Background()
	pipeline := newTestPipeline(t, env)
	c := env.newCollection(t, "docs")

	ready := env.newDraft(t, "ready.txt", "Alpha is here.", c.Id)
	orphan := env.newDraft(t, "orphan.txt", "Beta has no collection.")
	_, err := pipeline.Process(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, entity.ResourceStateReady, env.resource(t, ready.Id).State)
	require.Equal(t, entity.ResourceStateChunked, env.resource(t, orphan.Id).State)

	env.embedder.mu.Lock()
	callsBefore := env.embedder.calls
	env.embedder.mu.Unlock()

	report, err := pipeline.Process(ctx, []uuid.UUID{ready.Id, orphan.Id})
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Zero(t, report.Retrieved)
	assert.Zero(t, report.Parsed)
	assert.Zero(t, report.Chunked)
	assert.Zero(t, report.Embedded)

	assert.Equal(t, entity.ResourceStateReady, env.resource(t, ready.Id).State)
	assert.Equal(t, entity.ResourceStateChunked, env.resource(t, orphan.Id).State)
	env.embedder.mu.Lock()
	defer env.embedder.mu.Unlock()
	assert.Equal(t, callsBefore, env.embedder.calls)
}
