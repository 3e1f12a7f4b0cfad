package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/pkg/testdb"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/generation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	mu        sync.Mutex
	submitErr error
	submitted []map[string]any
	statuses  map[string]*generation.Status
	cancelled []string
	// finishWith, when set, makes submitted jobs succeed right away.
	finishWith *generation.Result
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{statuses: map[string]*generation.Status{}}
}

func (g *fakeGenerator) Submit(_ context.Context, _ string, inputs map[string]any) (*generation.Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	g.submitted = append(g.submitted, inputs)
	id := fmt.Sprintf("ext-%d", len(g.submitted))
	g.statuses[id] = &generation.Status{ExternalID: id, State: generation.StateRunning}
	if g.finishWith != nil {
		g.statuses[id] = &generation.Status{ExternalID: id, State: generation.StateSucceeded, Result: g.finishWith}
	}
	return &generation.Submission{ExternalID: id, ProviderData: map[string]any{"queue": "default"}}, nil
}

func (g *fakeGenerator) Status(_ context.Context, externalID string) (*generation.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[externalID]
	if !ok {
		return nil, errors.New("unknown job")
	}
	return st, nil
}

func (g *fakeGenerator) Cancel(_ context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, externalID)
	return nil
}

func (g *fakeGenerator) set(externalID string, st *generation.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st.ExternalID = externalID
	g.statuses[externalID] = st
}

func (g *fakeGenerator) ParseWebhook(payload []byte) (*generation.Status, error) {
	var body struct {
		ID      string              `json:"id"`
		Status  string              `json:"status"`
		Outputs []generation.Output `json:"outputs"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	return &generation.Status{
		ExternalID: body.ID,
		State:      generation.State(body.Status),
		Result:     &generation.Result{Outputs: body.Outputs},
	}, nil
}

type jobEnv struct {
	uowFactory unitofwork.RepositoryFactory
	resolver   *fakeResolver
	generator  *fakeGenerator
	publisher  *recordingPublisher
	jobs       IGenerationJobService
	provider   *entity.Provider
	model      *entity.Model
	thread     *entity.Thread
	prompt     *entity.Message
}

func newJobEnv(t *testing.T) *jobEnv {
	t.Helper()
	ctx := context.Background()
	db := testdb.New(t)

	env := &jobEnv{
		uowFactory: unitofwork.NewRepositoryFactory(db),
		resolver:   newFakeResolver(db),
		generator:  newFakeGenerator(),
		publisher:  &recordingPublisher{},
	}
	uow := env.uowFactory.NewUnitOfWork(ctx)
	env.provider = &entity.Provider{Name: "images", Service: "http"}
	require.NoError(t, uow.ProviderRepository().Create(ctx, env.provider))
	env.model = &entity.Model{ProviderId: env.provider.Id, Name: "painter", Use: entity.ModelUseImageGeneration}
	require.NoError(t, uow.ModelRepository().Create(ctx, env.model))

	env.resolver.generators[env.provider.Id] = env.generator
	env.jobs = NewGenerationJobService(env.uowFactory, env.resolver, env.publisher, config.JobsConfig{
		WebhookBaseURL: "http://localhost:3000",
	}, logger.NewNopLogger())
	env.thread, env.prompt = env.newThread(t)
	return env
}

// newThread stores a thread holding one "a red fox" user message.
func (e *jobEnv) newThread(t *testing.T) (*entity.Thread, *entity.Message) {
	t.Helper()
	ctx := context.Background()
	uow := e.uowFactory.NewUnitOfWork(ctx)
	thread := &entity.Thread{Name: "art", ProviderId: e.provider.Id, ModelId: e.model.Id}
	require.NoError(t, uow.ThreadRepository().Create(ctx, thread))
	prompt := &entity.Message{ThreadId: thread.Id, Role: entity.RoleUser, Body: "a red fox"}
	require.NoError(t, uow.MessageRepository().Create(ctx, prompt))
	return thread, prompt
}

// newJob creates a draft job on a thread of its own.
func (e *jobEnv) newJob(t *testing.T) uuid.UUID {
	t.Helper()
	thread, prompt := e.newThread(t)
	return e.newJobOn(t, thread, prompt)
}

func (e *jobEnv) newJobOn(t *testing.T, thread *entity.Thread, prompt *entity.Message) uuid.UUID {
	t.Helper()
	job, err := e.jobs.Create(context.Background(), &dto.CreateGenerationJobRequest{
		ThreadId:       thread.Id,
		ProviderId:     e.provider.Id,
		ModelId:        e.model.Id,
		InputMessageId: &prompt.Id,
	})
	require.NoError(t, err)
	assert.Equal(t, string(entity.JobStateDraft), job.State)
	return job.Id
}

func (e *jobEnv) resultMessages(t *testing.T, threadID uuid.UUID) []*entity.Message {
	t.Helper()
	ctx := context.Background()
	msgs, err := e.uowFactory.NewUnitOfWork(ctx).MessageRepository().FindAll(ctx, specification.ByThreadID{ThreadID: threadID})
	require.NoError(t, err)
	var out []*entity.Message
	for _, m := range msgs {
		if m.BodyJSON["type"] == "generation_result" {
			out = append(out, m)
		}
	}
	return out
}

func (e *jobEnv) state(t *testing.T, id uuid.UUID) *entity.GenerationJob {
	t.Helper()
	job, err := e.jobs.Load(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestGenerationJobService_QueueStartsJob(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	id := env.newJob(t)
	require.NoError(t, env.jobs.Queue(ctx, id))

	job := env.state(t, id)
	assert.Equal(t, entity.JobStateRunning, job.State)
	assert.Equal(t, "ext-1", job.ExternalJobId)
	assert.Equal(t, "default", job.ProviderData["queue"])
	assert.NotNil(t, job.QueuedAt)
	assert.NotNil(t, job.StartedAt)

	require.Len(t, env.generator.submitted, 1)
	assert.Equal(t, "a red fox", env.generator.submitted[0]["prompt"])
	assert.Equal(t, []string{events.TypeJobQueued, events.TypeJobRunning}, env.publisher.types())

	// only draft jobs can be queued
	assert.ErrorIs(t, env.jobs.Queue(ctx, id), ErrInvalidTransition)
}

func TestGenerationJobService_RejectsChatModels(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()
	uow := env.uowFactory.NewUnitOfWork(ctx)
	chat := &entity.Model{ProviderId: env.provider.Id, Name: "chat", Use: entity.ModelUseChat}
	require.NoError(t, uow.ModelRepository().Create(ctx, chat))

	_, err := env.jobs.Create(ctx, &dto.CreateGenerationJobRequest{
		ThreadId:   env.thread.Id,
		ProviderId: env.provider.Id,
		ModelId:    chat.Id,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerationJobService_ConcurrencyLimit(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	_, err := env.jobs.UpdateQueueSettings(ctx, &dto.QueueSettingsRequest{ModelId: env.model.Id, MaxConcurrentJobs: 1})
	require.NoError(t, err)

	first, second := env.newJob(t), env.newJob(t)
	require.NoError(t, env.jobs.Queue(ctx, first))
	require.NoError(t, env.jobs.Queue(ctx, second))

	assert.Equal(t, entity.JobStateRunning, env.state(t, first).State)
	assert.Equal(t, entity.JobStateQueued, env.state(t, second).State)

	stats, err := env.jobs.QueueStats(ctx, env.model.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RunningJobs)
	assert.Equal(t, int64(1), stats.QueuedJobs)
	assert.Equal(t, 1, stats.MaxConcurrentJobs)
	assert.Equal(t, QueueHealthHealthy, stats.Health)

	// a finished job frees the slot for the next tick
	env.generator.set("ext-1", &generation.Status{State: generation.StateSucceeded, Result: &generation.Result{}})
	require.NoError(t, env.jobs.Refresh(ctx, first))
	report, err := env.jobs.ProcessAllQueues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Started)
	assert.Equal(t, entity.JobStateRunning, env.state(t, second).State)
}

func TestGenerationJobService_CheckJobStatuses(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	done, broken, dropped := env.newJob(t), env.newJob(t), env.newJob(t)
	for _, id := range []uuid.UUID{done, broken, dropped} {
		require.NoError(t, env.jobs.Queue(ctx, id))
	}

	env.generator.set("ext-1", &generation.Status{State: generation.StateSucceeded, Result: &generation.Result{
		Outputs: []generation.Output{{URL: "https://cdn/fox.png", ContentType: "image/png", Filename: "fox.png"}},
	}})
	env.generator.set("ext-2", &generation.Status{State: generation.StateFailed, Error: "out of credits"})
	env.generator.set("ext-3", &generation.Status{State: generation.StateCancelled})

	report, err := env.jobs.CheckJobStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, &dto.StatusCheckReport{Checked: 3, Completed: 1, Failed: 1, Requeued: 1}, report)

	completed := env.state(t, done)
	assert.Equal(t, entity.JobStateCompleted, completed.State)
	require.NotNil(t, completed.OutputMessageId)

	msg, err := env.uowFactory.NewUnitOfWork(ctx).MessageRepository().FindOne(ctx, specification.ByID{ID: *completed.OutputMessageId})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, entity.RoleAssistant, msg.Role)
	assert.Equal(t, "![fox.png](https://cdn/fox.png)", msg.Body)
	assert.Equal(t, "generation_result", msg.BodyJSON["type"])

	failed := env.state(t, broken)
	assert.Equal(t, entity.JobStateFailed, failed.State)
	assert.Equal(t, "out of credits", failed.ErrorMessage)

	requeued := env.state(t, dropped)
	assert.Equal(t, entity.JobStateQueued, requeued.State)
	assert.Empty(t, requeued.ExternalJobId)
}

func TestGenerationJobService_SubmitFailureAndRetry(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	env.generator.submitErr = errors.New("provider unavailable")
	id := env.newJob(t)
	require.NoError(t, env.jobs.Queue(ctx, id))

	job := env.state(t, id)
	assert.Equal(t, entity.JobStateFailed, job.State)
	assert.Equal(t, "provider unavailable", job.ErrorMessage)

	env.generator.submitErr = nil
	for i := 1; i <= defaultMaxRetries; i++ {
		require.NoError(t, env.jobs.Retry(ctx, id))
		job = env.state(t, id)
		assert.Equal(t, entity.JobStateQueued, job.State)
		assert.Equal(t, i, job.RetryCount)
		require.NoError(t, env.jobs.Fail(ctx, id, "again"))
	}
	assert.ErrorIs(t, env.jobs.Retry(ctx, id), ErrValidation)

	other := env.newJob(t)
	assert.ErrorIs(t, env.jobs.Retry(ctx, other), ErrInvalidTransition)
}

func TestGenerationJobService_Cancel(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	id := env.newJob(t)
	require.NoError(t, env.jobs.Queue(ctx, id))
	require.NoError(t, env.jobs.Cancel(ctx, id))

	assert.Equal(t, entity.JobStateCancelled, env.state(t, id).State)
	assert.Equal(t, []string{"ext-1"}, env.generator.cancelled)
	assert.ErrorIs(t, env.jobs.Cancel(ctx, id), ErrInvalidTransition)
	assert.Contains(t, env.publisher.types(), events.TypeJobCancelled)
}

func TestGenerationJobService_HandleWebhook(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	id := env.newJob(t)
	require.NoError(t, env.jobs.Queue(ctx, id))

	err := env.jobs.HandleWebhook(ctx, id, []byte(`{"id":"ext-99","status":"succeeded"}`))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, entity.JobStateRunning, env.state(t, id).State)

	assert.ErrorIs(t, env.jobs.HandleWebhook(ctx, id, []byte(`not json`)), ErrValidation)

	require.NoError(t, env.jobs.HandleWebhook(ctx, id, []byte(`{"id":"ext-1","status":"succeeded","outputs":[{"url":"https://cdn/a.txt","filename":"a.txt"}]}`)))
	assert.Equal(t, entity.JobStateCompleted, env.state(t, id).State)

	// late duplicates are ignored
	require.NoError(t, env.jobs.HandleWebhook(ctx, id, []byte(`{"id":"ext-1","status":"failed"}`)))
	assert.Equal(t, entity.JobStateCompleted, env.state(t, id).State)

	_, err = env.jobs.Show(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerationJobService_OneActiveJobPerThread(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	first := env.newJobOn(t, env.thread, env.prompt)
	second := env.newJobOn(t, env.thread, env.prompt)
	require.NoError(t, env.jobs.Queue(ctx, first))

	assert.ErrorIs(t, env.jobs.Queue(ctx, second), ErrThreadBusy)
	assert.Equal(t, entity.JobStateDraft, env.state(t, second).State)

	_, err := env.jobs.Create(ctx, &dto.CreateGenerationJobRequest{
		ThreadId:       env.thread.Id,
		ProviderId:     env.provider.Id,
		ModelId:        env.model.Id,
		InputMessageId: &env.prompt.Id,
	})
	assert.ErrorIs(t, err, ErrThreadBusy)

	require.NoError(t, env.jobs.Fail(ctx, first, "gave up"))
	require.NoError(t, env.jobs.Queue(ctx, second))
	assert.ErrorIs(t, env.jobs.Retry(ctx, first), ErrThreadBusy)
	assert.Equal(t, entity.JobStateFailed, env.state(t, first).State)

	require.NoError(t, env.jobs.Cancel(ctx, second))
	require.NoError(t, env.jobs.Retry(ctx, first))
}

func TestGenerationJobService_ConcurrentQueueOnOneThread(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	// the queue row must exist before the racing calls
	_, err := env.jobs.UpdateQueueSettings(ctx, &dto.QueueSettingsRequest{ModelId: env.model.Id, MaxConcurrentJobs: 10})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = env.newJobOn(t, env.thread, env.prompt)
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			errs[i] = env.jobs.Queue(ctx, id)
		}(i, id)
	}
	wg.Wait()

	var queued, busy int
	for _, err := range errs {
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrThreadBusy):
			busy++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, queued)
	assert.Equal(t, 3, busy)
}

func TestGenerationJobService_CompleteOnlyOnce(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()
	result := &generation.Result{Outputs: []generation.Output{{URL: "https://cdn/fox.png", ContentType: "image/png", Filename: "fox.png"}}}

	t.Run("second completion is rejected", func(t *testing.T) {
		thread, prompt := env.newThread(t)
		id := env.newJobOn(t, thread, prompt)
		require.NoError(t, env.jobs.Queue(ctx, id))

		require.NoError(t, env.jobs.Complete(ctx, id, result))
		assert.ErrorIs(t, env.jobs.Complete(ctx, id, result), ErrInvalidTransition)

		assert.Len(t, env.resultMessages(t, thread.Id), 1)
		job := env.state(t, id)
		require.NotNil(t, job.OutputMessageId)
		assert.Equal(t, env.resultMessages(t, thread.Id)[0].Id, *job.OutputMessageId)
	})

	t.Run("cancelled job leaves no output", func(t *testing.T) {
		thread, prompt := env.newThread(t)
		id := env.newJobOn(t, thread, prompt)
		require.NoError(t, env.jobs.Queue(ctx, id))
		require.NoError(t, env.jobs.Cancel(ctx, id))

		assert.ErrorIs(t, env.jobs.Complete(ctx, id, result), ErrInvalidTransition)
		assert.Empty(t, env.resultMessages(t, thread.Id))
		assert.Equal(t, entity.JobStateCancelled, env.state(t, id).State)
	})
}

func TestGenerationJobService_StartCancelsUnrecordedSubmission(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	faulty := &faultyFactory{
		RepositoryFactory: env.uowFactory,
		failTransition: func(fields map[string]interface{}) error {
			if id, _ := fields["external_job_id"].(string); id != "" {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	jobs := NewGenerationJobService(faulty, env.resolver, env.publisher, config.JobsConfig{}, logger.NewNopLogger())

	id := env.newJob(t)
	require.NoError(t, jobs.Queue(ctx, id))

	job := env.state(t, id)
	assert.Equal(t, entity.JobStateFailed, job.State)
	assert.Contains(t, job.ErrorMessage, "connection reset")
	assert.Empty(t, job.ExternalJobId)
	assert.Equal(t, []string{"ext-1"}, env.generator.cancelled)

	stats, err := jobs.QueueStats(ctx, env.model.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.RunningJobs)

	// a direct start reports the failure to its caller
	require.NoError(t, jobs.Retry(ctx, id))
	err = jobs.Start(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{"ext-1", "ext-2"}, env.generator.cancelled)
	assert.Equal(t, entity.JobStateFailed, env.state(t, id).State)
}

func TestQueueHealth(t *testing.T) {
	tests := []struct {
		name  string
		stats dto.QueueStatsResponse
		want  string
	}{
		{"disabled", dto.QueueStatsResponse{Enabled: false, SuccessRate: 100, MaxConcurrentJobs: 5}, QueueHealthDisabled},
		{"healthy", dto.QueueStatsResponse{Enabled: true, SuccessRate: 95, QueuedJobs: 5, MaxConcurrentJobs: 5}, QueueHealthHealthy},
		{"warning on success rate", dto.QueueStatsResponse{Enabled: true, SuccessRate: 70, MaxConcurrentJobs: 5}, QueueHealthWarning},
		{"warning on backlog", dto.QueueStatsResponse{Enabled: true, SuccessRate: 100, QueuedJobs: 6, MaxConcurrentJobs: 5}, QueueHealthWarning},
		{"critical on success rate", dto.QueueStatsResponse{Enabled: true, SuccessRate: 40, MaxConcurrentJobs: 5}, QueueHealthCritical},
		{"critical on backlog", dto.QueueStatsResponse{Enabled: true, SuccessRate: 100, QueuedJobs: 21, MaxConcurrentJobs: 5}, QueueHealthCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queueHealth(&tt.stats))
		})
	}
}
