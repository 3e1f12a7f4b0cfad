package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/pkg/testdb"
	"llm-knowledge-be/internal/repository/contract"
	"llm-knowledge-be/internal/repository/memory"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/generation"
	"llm-knowledge-be/pkg/llm"
	"llm-knowledge-be/pkg/llm/llmtest"
	"llm-knowledge-be/pkg/tool"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []dto.ThreadEvent
}

func (s *recordingSink) Broadcast(_ uuid.UUID, ev dto.ThreadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type threadEnv struct {
	uowFactory unitofwork.RepositoryFactory
	resolver   *fakeResolver
	generator  *fakeGenerator
	locks      *memory.ThreadLockRepository
	sink       *recordingSink
	threads    IThreadService
	provider   *entity.Provider
	chat       *entity.Model
	streaming  *entity.Model
	painter    *entity.Model
	embedder   *entity.Model
	mock       *llmtest.MockProvider
	streamMock *llmtest.MockProvider
	tools      *tool.Registry
	jobs       IGenerationJobService
	jobsCfg    config.JobsConfig
	log        logger.ILogger
}

func newThreadEnv(t *testing.T) *threadEnv {
	t.Helper()
	ctx := context.Background()
	db := testdb.New(t)

	env := &threadEnv{
		uowFactory: unitofwork.NewRepositoryFactory(db),
		resolver:   newFakeResolver(db),
		generator:  newFakeGenerator(),
		locks:      memory.NewThreadLockRepository(),
		sink:       &recordingSink{},
		mock:       &llmtest.MockProvider{},
		streamMock: &llmtest.MockProvider{},
	}
	uow := env.uowFactory.NewUnitOfWork(ctx)
	env.provider = &entity.Provider{Name: "local", Service: "ollama"}
	require.NoError(t, uow.ProviderRepository().Create(ctx, env.provider))

	newModel := func(name string, use entity.ModelUse, streaming bool) *entity.Model {
		m := &entity.Model{ProviderId: env.provider.Id, Name: name, Use: use, SupportsStreaming: streaming}
		require.NoError(t, uow.ModelRepository().Create(ctx, m))
		return m
	}
	env.chat = newModel("llama", entity.ModelUseChat, false)
	env.streaming = newModel("llama-stream", entity.ModelUseChat, true)
	env.painter = newModel("painter", entity.ModelUseImageGeneration, false)
	env.embedder = newModel("nomic", entity.ModelUseEmbedding, false)

	env.resolver.chats[env.chat.Id] = env.mock
	env.resolver.chats[env.streaming.Id] = env.streamMock
	env.resolver.generators[env.provider.Id] = env.generator

	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(tool.Func{
		ToolName:        "echo",
		ToolDescription: "Echoes its arguments",
		Parameters:      json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	}))
	require.NoError(t, tools.Register(tool.Func{
		ToolName:   "explode",
		Parameters: json.RawMessage(`{"type":"object"}`),
		Fn: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	}))

	env.tools = tools
	env.jobsCfg = config.JobsConfig{JobPollInterval: 10 * time.Millisecond}
	env.log = logger.NewNopLogger()
	env.jobs = NewGenerationJobService(env.uowFactory, env.resolver, &recordingPublisher{}, env.jobsCfg, env.log)
	env.threads = env.service(env.uowFactory, env.locks, config.ThreadConfig{HistoryLimit: 25, MaxToolRounds: 3, LockTTL: time.Minute})
	return env
}

func (e *threadEnv) service(factory unitofwork.RepositoryFactory, locks contract.ThreadLockRepository, cfg config.ThreadConfig) IThreadService {
	return NewThreadService(factory, e.resolver, e.jobs, e.tools, locks, e.sink, cfg, e.jobsCfg, e.log)
}

func (e *threadEnv) newThread(t *testing.T, model *entity.Model, toolNames ...string) *dto.ThreadResponse {
	t.Helper()
	th, err := e.threads.Create(context.Background(), &dto.CreateThreadRequest{
		Name:         "research",
		ProviderId:   e.provider.Id,
		ModelId:      model.Id,
		SystemPrompt: "Be brief.",
		ToolNames:    toolNames,
	})
	require.NoError(t, err)
	return th
}

func drain(t *testing.T, ch <-chan dto.ThreadEvent) []dto.ThreadEvent {
	t.Helper()
	var out []dto.ThreadEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("generation cycle did not finish")
			return out
		}
	}
}

func eventTypes(events []dto.ThreadEvent) []dto.ThreadEventType {
	out := make([]dto.ThreadEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func (e *threadEnv) messages(t *testing.T, threadID uuid.UUID) []*dto.MessageResponse {
	t.Helper()
	msgs, err := e.threads.ListMessages(context.Background(), threadID)
	require.NoError(t, err)
	return msgs
}

func TestThreadService_CreateValidation(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  dto.CreateThreadRequest
	}{
		{"unknown tool", dto.CreateThreadRequest{Name: "x", ProviderId: env.provider.Id, ModelId: env.chat.Id, ToolNames: []string{"teleport"}}},
		{"embedding model", dto.CreateThreadRequest{Name: "x", ProviderId: env.provider.Id, ModelId: env.embedder.Id}},
		{"missing model", dto.CreateThreadRequest{Name: "x", ProviderId: env.provider.Id, ModelId: uuid.New()}},
		{"foreign provider", dto.CreateThreadRequest{Name: "x", ProviderId: uuid.New(), ModelId: env.chat.Id}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.threads.Create(ctx, &tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestThreadService_GenerateWithTools(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.chat, "echo")

	env.mock.Responses = []llm.Response{
		{ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: llm.FunctionCall{Name: "echo", Arguments: `{"text":"hi"}`},
		}}},
		{Content: "The tool said hi."},
	}

	ch, err := env.threads.Generate(ctx, th.Id, "say hi")
	require.NoError(t, err)
	events := drain(t, ch)

	assert.Equal(t, []dto.ThreadEventType{
		dto.EventMessageCreated,
		dto.EventMessageCreated,
		dto.EventToolCalled,
		dto.EventToolSucceeded,
		dto.EventMessageCreated,
		dto.EventDone,
	}, eventTypes(events))
	assert.Equal(t, "echo", events[3].ToolName)
	assert.Equal(t, len(events), env.sink.count())

	msgs := env.messages(t, th.Id)
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Len(t, msgs[1].BodyJSON["tool_calls"], 1)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.JSONEq(t, `{"text":"hi"}`, msgs[2].Body)
	assert.Equal(t, ToolStatusCompleted, msgs[2].BodyJSON["status"])
	assert.Equal(t, "The tool said hi.", msgs[3].Body)

	require.Equal(t, 2, env.mock.CallCount())
	first := env.mock.Calls[0]
	assert.Equal(t, "system", first[0].Role)
	assert.Equal(t, "Be brief.", first[0].Content)
	require.Len(t, env.mock.Options[0].Tools, 1)
	assert.Equal(t, "echo", env.mock.Options[0].Tools[0].Function.Name)

	second := env.mock.Calls[1]
	toolMsg := second[len(second)-1]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "echo", toolMsg.Name)
}

func TestThreadService_ToolFailuresAreReported(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.chat, "explode")

	env.mock.Responses = []llm.Response{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "explode", Arguments: `{}`}},
			{ID: "call_2", Type: "function", Function: llm.FunctionCall{Name: "echo", Arguments: `{}`}},
			{ID: "call_3", Type: "function", Function: llm.FunctionCall{Name: "explode", Arguments: `not json`}},
		}},
		{Content: "Sorry, the tools failed."},
	}

	ch, err := env.threads.Generate(ctx, th.Id, "try it")
	require.NoError(t, err)
	events := drain(t, ch)

	failed := 0
	for _, ev := range events {
		if ev.Type == dto.EventToolFailed {
			failed++
			assert.NotEmpty(t, ev.Error)
		}
	}
	assert.Equal(t, 3, failed)

	msgs := env.messages(t, th.Id)
	require.Len(t, msgs, 6)
	assert.Equal(t, "Error: boom", msgs[2].Body)
	assert.Contains(t, msgs[3].Body, "not enabled")
	assert.Contains(t, msgs[4].Body, "invalid tool arguments")
	assert.Equal(t, "Sorry, the tools failed.", msgs[5].Body)
}

func TestThreadService_ToolRoundLimit(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.chat, "echo")

	loop := llm.Response{ToolCalls: []llm.ToolCall{{ID: "call", Type: "function", Function: llm.FunctionCall{Name: "echo", Arguments: `{}`}}}}
	env.mock.Responses = []llm.Response{loop, loop, loop, loop, loop}

	ch, err := env.threads.Generate(ctx, th.Id, "loop forever")
	require.NoError(t, err)
	events := drain(t, ch)

	require.GreaterOrEqual(t, len(events), 2)
	errEv := events[len(events)-2]
	assert.Equal(t, dto.EventError, errEv.Type)
	assert.Contains(t, errEv.Error, "tool rounds")
	assert.Equal(t, dto.EventDone, events[len(events)-1].Type)
}

func TestThreadService_Streaming(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.streaming)

	env.streamMock.Responses = []llm.Response{{Content: "streamed replies arrive in pieces"}}

	ch, err := env.threads.Generate(ctx, th.Id, "stream please")
	require.NoError(t, err)
	events := drain(t, ch)

	var deltas strings.Builder
	var updated *dto.MessageResponse
	for _, ev := range events {
		switch ev.Type {
		case dto.EventMessageChunk:
			deltas.WriteString(ev.Delta)
		case dto.EventMessageUpdated:
			updated = ev.Message
		}
	}
	assert.Equal(t, "streamed replies arrive in pieces", deltas.String())
	require.NotNil(t, updated)
	assert.Equal(t, "streamed replies arrive in pieces", updated.Body)

	msgs := env.messages(t, th.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, "streamed replies arrive in pieces", msgs[1].Body)
}

func TestThreadService_ProviderErrorIsStored(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.chat)
	env.mock.Err = errors.New("connection refused")

	ch, err := env.threads.Generate(ctx, th.Id, "hello")
	require.NoError(t, err)
	events := drain(t, ch)

	assert.Equal(t, []dto.ThreadEventType{dto.EventMessageCreated, dto.EventError, dto.EventDone}, eventTypes(events))
	msgs := env.messages(t, th.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[1].Role)
	assert.Equal(t, "Error: connection refused", msgs[1].Body)

	// system messages are skipped, so the next cycle answers the user again
	env.mock.Err = nil
	ch, err = env.threads.Generate(ctx, th.Id, "")
	require.NoError(t, err)
	drain(t, ch)
	msgs = env.messages(t, th.Id)
	require.Len(t, msgs, 3)
	assert.Equal(t, "mock response", msgs[2].Body)
}

func TestThreadService_RejectsConcurrentGeneration(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.chat)

	token, ok, err := env.locks.Acquire(ctx, th.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.threads.Generate(ctx, th.Id, "hello")
	assert.ErrorIs(t, err, ErrThreadBusy)

	require.NoError(t, env.locks.Release(ctx, th.Id, token))
	ch, err := env.threads.Generate(ctx, th.Id, "hello")
	require.NoError(t, err)
	drain(t, ch)

	// the lock is released once the cycle ends
	token, ok, err = env.locks.Acquire(ctx, th.Id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
}

func TestThreadService_GenerateViaJob(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.painter)
	env.generator.finishWith = &generation.Result{Outputs: []generation.Output{
		{URL: "https://cdn/fox.png", ContentType: "image/png", Filename: "fox.png"},
	}}

	ch, err := env.threads.Generate(ctx, th.Id, "a fox")
	require.NoError(t, err)
	events := drain(t, ch)

	var states []string
	for _, ev := range events {
		if ev.Type == dto.EventJobStatus {
			states = append(states, ev.JobState)
			assert.NotNil(t, ev.JobId)
		}
	}
	assert.Equal(t, []string{"running", "completed"}, states)
	assert.Equal(t, dto.EventDone, events[len(events)-1].Type)

	msgs := env.messages(t, th.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, "![fox.png](https://cdn/fox.png)", msgs[1].Body)
	assert.Equal(t, "generation_result", msgs[1].BodyJSON["type"])
	require.Len(t, env.generator.submitted, 1)
	assert.Equal(t, "a fox", env.generator.submitted[0]["prompt"])
}

func TestThreadService_DeleteRemovesMessages(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	th := env.newThread(t, env.chat)

	ch, err := env.threads.Generate(ctx, th.Id, "hello")
	require.NoError(t, err)
	drain(t, ch)

	require.NoError(t, env.threads.Delete(ctx, th.Id))
	_, err = env.threads.Show(ctx, th.Id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.threads.ListMessages(ctx, th.Id)
	assert.ErrorIs(t, err, ErrNotFound)
}

// blockingProvider holds every Chat call until release is closed or the
// call's context ends.
type blockingProvider struct {
	started     chan struct{}
	release     chan struct{}
	startedOnce sync.Once
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{started: make(chan struct{}), release: make(chan struct{})}
}

func (p *blockingProvider) Chat(ctx context.Context, _ []llm.Message, _ ...llm.Option) (*llm.Response, error) {
	p.startedOnce.Do(func() { close(p.started) })
	select {
	case <-p.release:
		return &llm.Response{Content: "finally"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *blockingProvider) Stream(context.Context, []llm.Message, ...llm.Option) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not streaming")
}

// endlessStream keeps sending chunks until its context ends.
type endlessStream struct {
	stopped chan struct{}
}

func (p *endlessStream) Chat(context.Context, []llm.Message, ...llm.Option) (*llm.Response, error) {
	return nil, errors.New("stream only")
}

func (p *endlessStream) Stream(ctx context.Context, _ []llm.Message, _ ...llm.Option) (<-chan llm.StreamChunk, error) {
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(p.stopped)
		defer close(out)
		for {
			select {
			case out <- llm.StreamChunk{Content: "more "}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// stuckLocks never lets a lock be extended.
type stuckLocks struct {
	*memory.ThreadLockRepository
}

func (stuckLocks) Extend(context.Context, uuid.UUID, string, time.Duration) (bool, error) {
	return false, nil
}

func TestThreadService_LockOutlivesItsTTL(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	provider := newBlockingProvider()
	env.resolver.chats[env.chat.Id] = provider
	threads := env.service(env.uowFactory, env.locks, config.ThreadConfig{HistoryLimit: 25, MaxToolRounds: 3, LockTTL: 60 * time.Millisecond})
	th := env.newThread(t, env.chat)

	ch, err := threads.Generate(ctx, th.Id, "take your time")
	require.NoError(t, err)
	<-provider.started

	time.Sleep(200 * time.Millisecond)
	_, err = threads.Generate(ctx, th.Id, "me too")
	assert.ErrorIs(t, err, ErrThreadBusy)

	close(provider.release)
	events := drain(t, ch)
	assert.NotContains(t, eventTypes(events), dto.EventError)
	assert.Equal(t, dto.EventDone, events[len(events)-1].Type)

	msgs := env.messages(t, th.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, "finally", msgs[1].Body)
}

func TestThreadService_LostLockStopsGeneration(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	provider := newBlockingProvider()
	env.resolver.chats[env.chat.Id] = provider
	threads := env.service(env.uowFactory, stuckLocks{env.locks}, config.ThreadConfig{HistoryLimit: 25, MaxToolRounds: 3, LockTTL: 60 * time.Millisecond})
	th := env.newThread(t, env.chat)

	ch, err := threads.Generate(ctx, th.Id, "take your time")
	require.NoError(t, err)
	events := drain(t, ch)

	require.GreaterOrEqual(t, len(events), 2)
	errEv := events[len(events)-2]
	assert.Equal(t, dto.EventError, errEv.Type)
	assert.Contains(t, errEv.Error, "thread lock lost")
	assert.Equal(t, dto.EventDone, events[len(events)-1].Type)

	_, ok, err := env.locks.Acquire(ctx, th.Id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestThreadService_StreamStopsOnStoreFailure(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	provider := &endlessStream{stopped: make(chan struct{})}
	env.resolver.chats[env.streaming.Id] = provider
	faulty := &faultyFactory{
		RepositoryFactory: env.uowFactory,
		failMessage: func(msg *entity.Message) error {
			if msg.Role == entity.RoleAssistant {
				return errors.New("disk full")
			}
			return nil
		},
	}
	threads := env.service(faulty, env.locks, config.ThreadConfig{HistoryLimit: 25, MaxToolRounds: 3, LockTTL: time.Minute})
	th := env.newThread(t, env.streaming)

	ch, err := threads.Generate(ctx, th.Id, "stream please")
	require.NoError(t, err)
	events := drain(t, ch)

	select {
	case <-provider.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("provider stream kept running")
	}
	assert.Equal(t, []dto.ThreadEventType{dto.EventMessageCreated, dto.EventError, dto.EventDone}, eventTypes(events))
	assert.Contains(t, events[1].Error, "disk full")
}

func TestThreadService_GenerateWithAssistant(t *testing.T) {
	env := newThreadEnv(t)
	ctx := context.Background()
	assistants := NewAssistantService(env.uowFactory, env.tools, env.log)
	rounds := 1
	a, err := assistants.Create(ctx, &dto.AssistantRequest{
		Name:           "helper",
		ProviderId:     env.provider.Id,
		ModelId:        env.chat.Id,
		PromptTemplate: "You help {{ team }} in {{ thread_name }}.",
		DefaultValues:  map[string]interface{}{"team": "research"},
		ToolNames:      []string{"echo"},
		ToolCallsMax:   &rounds,
	})
	require.NoError(t, err)

	th, err := env.threads.Create(ctx, &dto.CreateThreadRequest{Name: "lab notes", AssistantId: &a.Id})
	require.NoError(t, err)
	require.NotNil(t, th.AssistantId)
	assert.Equal(t, a.Id, *th.AssistantId)
	assert.Equal(t, env.chat.Id, th.ModelId)

	loop := llm.Response{ToolCalls: []llm.ToolCall{{ID: "call", Type: "function", Function: llm.FunctionCall{Name: "echo", Arguments: `{}`}}}}
	env.mock.Responses = []llm.Response{loop, loop, loop}

	ch, err := env.threads.Generate(ctx, th.Id, "hello")
	require.NoError(t, err)
	events := drain(t, ch)

	require.Equal(t, 2, env.mock.CallCount())
	system := env.mock.Calls[0][0]
	assert.Equal(t, "system", system.Role)
	assert.Equal(t, "You help research in lab notes.", system.Content)
	require.Len(t, env.mock.Options[0].Tools, 1)
	assert.Equal(t, "echo", env.mock.Options[0].Tools[0].Function.Name)

	errEv := events[len(events)-2]
	assert.Equal(t, dto.EventError, errEv.Type)
	assert.Contains(t, errEv.Error, "stopped after 1 tool rounds")

	// archived assistants cannot be attached
	inactive := false
	_, err = assistants.Update(ctx, &dto.AssistantRequest{
		Id: a.Id, Name: "helper", Active: &inactive, ProviderId: env.provider.Id, ModelId: env.chat.Id,
	})
	require.NoError(t, err)
	_, err = env.threads.Create(ctx, &dto.CreateThreadRequest{Name: "late", AssistantId: &a.Id})
	assert.ErrorIs(t, err, ErrValidation)
}
