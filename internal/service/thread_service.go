package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/contract"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/llm"
	"llm-knowledge-be/pkg/tool"

	"github.com/google/uuid"
)

const (
	ToolStatusRequested = "requested"
	ToolStatusExecuting = "executing"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"

	bodyTypeToolExecution = "tool_execution"
	bodyTypeError         = "error"
)

// ThreadEventSink receives every event of every generation cycle, e.g. to
// fan it out to websocket subscribers of the thread.
type ThreadEventSink interface {
	Broadcast(threadID uuid.UUID, event dto.ThreadEvent)
}

type IThreadService interface {
	Create(ctx context.Context, req *dto.CreateThreadRequest) (*dto.ThreadResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.ThreadResponse, error)
	GetAll(ctx context.Context) ([]*dto.ThreadResponse, error)
	Update(ctx context.Context, req *dto.UpdateThreadRequest) (*dto.ThreadResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListMessages(ctx context.Context, id uuid.UUID) ([]*dto.MessageResponse, error)

	// Generate runs one response cycle for the thread. body, when not empty,
	// is appended as a user message first. The channel is closed once the
	// cycle is over; the last event is always Done.
	Generate(ctx context.Context, threadID uuid.UUID, body string) (<-chan dto.ThreadEvent, error)
}

type threadService struct {
	uowFactory unitofwork.RepositoryFactory
	resolver   IProviderResolver
	jobs       IGenerationJobService
	tools      *tool.Registry
	locks      contract.ThreadLockRepository
	sink       ThreadEventSink
	cfg        config.ThreadConfig
	pollEvery  time.Duration
	logger     logger.ILogger
}

func NewThreadService(
	uowFactory unitofwork.RepositoryFactory,
	resolver IProviderResolver,
	jobs IGenerationJobService,
	tools *tool.Registry,
	locks contract.ThreadLockRepository,
	sink ThreadEventSink,
	cfg config.ThreadConfig,
	jobsCfg config.JobsConfig,
	log logger.ILogger,
) IThreadService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 25
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	poll := jobsCfg.JobPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &threadService{
		uowFactory: uowFactory,
		resolver:   resolver,
		jobs:       jobs,
		tools:      tools,
		locks:      locks,
		sink:       sink,
		cfg:        cfg,
		pollEvery:  poll,
		logger:     log,
	}
}

func (s *threadService) validateThread(ctx context.Context, uow unitofwork.UnitOfWork, t *entity.Thread) error {
	if t.ToolNames == nil {
		t.ToolNames = []string{}
	}
	return validateModelSetup(ctx, uow, s.tools, t.ProviderId, t.ModelId, t.ToolNames)
}

// applyAssistant attaches the thread to an assistant and copies its provider,
// model and tools. A nil id detaches the thread.
func (s *threadService) applyAssistant(ctx context.Context, uow unitofwork.UnitOfWork, t *entity.Thread, id *uuid.UUID) error {
	t.AssistantId = nil
	if id == nil {
		return nil
	}
	a, err := uow.AssistantRepository().FindOne(ctx, specification.ByID{ID: *id})
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: assistant %s does not exist", ErrValidation, *id)
	}
	if !a.Active {
		return fmt.Errorf("%w: assistant %s is archived", ErrValidation, a.Name)
	}
	t.AssistantId = &a.Id
	t.ProviderId = a.ProviderId
	t.ModelId = a.ModelId
	t.ToolNames = append([]string{}, a.ToolNames...)
	return nil
}

func (s *threadService) Create(ctx context.Context, req *dto.CreateThreadRequest) (*dto.ThreadResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	thread := &entity.Thread{
		Name:         req.Name,
		ProviderId:   req.ProviderId,
		ModelId:      req.ModelId,
		SystemPrompt: req.SystemPrompt,
		ToolNames:    req.ToolNames,
	}
	if err := s.applyAssistant(ctx, uow, thread, req.AssistantId); err != nil {
		return nil, err
	}
	if err := s.validateThread(ctx, uow, thread); err != nil {
		return nil, err
	}
	if err := uow.ThreadRepository().Create(ctx, thread); err != nil {
		return nil, err
	}
	return toThreadResponse(thread), nil
}

func (s *threadService) find(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) (*entity.Thread, error) {
	thread, err := uow.ThreadRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, fmt.Errorf("%w: thread %s", ErrNotFound, id)
	}
	return thread, nil
}

func (s *threadService) Show(ctx context.Context, id uuid.UUID) (*dto.ThreadResponse, error) {
	thread, err := s.find(ctx, s.uowFactory.NewUnitOfWork(ctx), id)
	if err != nil {
		return nil, err
	}
	return toThreadResponse(thread), nil
}

func (s *threadService) GetAll(ctx context.Context) ([]*dto.ThreadResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	threads, err := uow.ThreadRepository().FindAll(ctx, specification.OrderBy{Field: "updated_at", Desc: true})
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ThreadResponse, len(threads))
	for i, t := range threads {
		out[i] = toThreadResponse(t)
	}
	return out, nil
}

func (s *threadService) Update(ctx context.Context, req *dto.UpdateThreadRequest) (*dto.ThreadResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	thread, err := s.find(ctx, uow, req.Id)
	if err != nil {
		return nil, err
	}
	thread.Name = req.Name
	thread.ProviderId = req.ProviderId
	thread.ModelId = req.ModelId
	thread.SystemPrompt = req.SystemPrompt
	thread.ToolNames = req.ToolNames
	if err := s.applyAssistant(ctx, uow, thread, req.AssistantId); err != nil {
		return nil, err
	}
	if err := s.validateThread(ctx, uow, thread); err != nil {
		return nil, err
	}
	if err := uow.ThreadRepository().Update(ctx, thread); err != nil {
		return nil, err
	}
	return toThreadResponse(thread), nil
}

func (s *threadService) Delete(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.find(ctx, uow, id); err != nil {
		return err
	}
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()
	if err := uow.MessageRepository().DeleteByThread(ctx, id); err != nil {
		return err
	}
	if err := uow.ThreadRepository().Delete(ctx, id); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *threadService) ListMessages(ctx context.Context, id uuid.UUID) ([]*dto.MessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.find(ctx, uow, id); err != nil {
		return nil, err
	}
	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByThreadID{ThreadID: id},
		specification.OrderBy{Field: "position"},
	)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.MessageResponse, len(messages))
	for i, m := range messages {
		out[i] = toMessageResponse(m)
	}
	return out, nil
}

var errThreadLockLost = errors.New("thread lock lost before the generation finished")

// setup resolves what a cycle runs with: the thread's own model, tools and
// system prompt, or those of its assistant.
func (s *threadService) setup(ctx context.Context, uow unitofwork.UnitOfWork, thread *entity.Thread) (*cycle, error) {
	c := &cycle{
		svc:           s,
		thread:        thread,
		toolNames:     thread.ToolNames,
		systemPrompt:  thread.SystemPrompt,
		maxToolRounds: s.cfg.MaxToolRounds,
	}
	modelID := thread.ModelId
	if thread.AssistantId != nil {
		a, err := uow.AssistantRepository().FindOne(ctx, specification.ByID{ID: *thread.AssistantId})
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, fmt.Errorf("%w: assistant %s of thread %s is missing", ErrConfiguration, *thread.AssistantId, thread.Name)
		}
		prompt, err := renderAssistantPrompt(a, thread)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		modelID = a.ModelId
		c.toolNames = a.ToolNames
		if prompt != "" {
			c.systemPrompt = prompt
		}
		if a.ToolCallsMax > 0 {
			c.maxToolRounds = a.ToolCallsMax
		}
	}
	model, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: modelID})
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("%w: model %s of thread %s is missing", ErrConfiguration, modelID, thread.Name)
	}
	c.model = model
	return c, nil
}

func (s *threadService) Generate(ctx context.Context, threadID uuid.UUID, body string) (<-chan dto.ThreadEvent, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	thread, err := s.find(ctx, uow, threadID)
	if err != nil {
		return nil, err
	}
	c, err := s.setup(ctx, uow, thread)
	if err != nil {
		return nil, err
	}

	token, ok, err := s.locks.Acquire(ctx, threadID, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrThreadBusy
	}

	events := make(chan dto.ThreadEvent, 16)
	c.events = events
	cycleCtx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer close(events)

		heartbeat := make(chan struct{})
		go func() {
			defer close(heartbeat)
			s.keepLock(cycleCtx, cancel, threadID, token)
		}()
		defer func() {
			cancel(nil)
			<-heartbeat
			if err := s.locks.Release(context.WithoutCancel(ctx), threadID, token); err != nil {
				s.logger.Error("Thread", "Failed to release thread lock", map[string]interface{}{
					"thread_id": threadID,
					"error":     err.Error(),
				})
			}
		}()
		c.run(cycleCtx, body)
	}()
	return events, nil
}

// keepLock extends the thread lock every third of its ttl until ctx is done.
// Losing the lock cancels the cycle with errThreadLockLost.
func (s *threadService) keepLock(ctx context.Context, cancel context.CancelCauseFunc, threadID uuid.UUID, token string) {
	ticker := time.NewTicker(s.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ok, err := s.locks.Extend(ctx, threadID, token, s.cfg.LockTTL)
		if ctx.Err() != nil {
			return
		}
		if err == nil && ok {
			continue
		}
		fields := map[string]interface{}{"thread_id": threadID}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Warn("Thread", "Thread lock lost, stopping generation", fields)
		cancel(errThreadLockLost)
		return
	}
}

// cycle is one Generate call. It is owned by a single goroutine.
type cycle struct {
	svc           *threadService
	thread        *entity.Thread
	model         *entity.Model
	toolNames     []string
	systemPrompt  string
	maxToolRounds int
	events        chan<- dto.ThreadEvent
}

// emit delivers an event to the sink and the caller. It reports false once
// ctx is done.
func (c *cycle) emit(ctx context.Context, ev dto.ThreadEvent) bool {
	ev.ThreadId = c.thread.Id
	if c.svc.sink != nil {
		c.svc.sink.Broadcast(c.thread.Id, ev)
	}
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *cycle) run(ctx context.Context, body string) {
	if err := c.loop(ctx, body); err != nil {
		if cause := context.Cause(ctx); errors.Is(err, context.Canceled) && cause != nil {
			err = cause
		}
		c.fail(ctx, err)
	}
	c.emit(context.WithoutCancel(ctx), dto.ThreadEvent{Type: dto.EventDone})
}

func (c *cycle) fail(ctx context.Context, cause error) {
	c.svc.logger.Warn("Thread", "Generation cycle failed", map[string]interface{}{
		"thread_id": c.thread.Id,
		"error":     cause.Error(),
	})
	bg := context.WithoutCancel(ctx)
	msg := &entity.Message{
		ThreadId: c.thread.Id,
		Role:     entity.RoleSystem,
		Body:     "Error: " + cause.Error(),
		BodyJSON: map[string]interface{}{"type": bodyTypeError, "error": cause.Error()},
	}
	ev := dto.ThreadEvent{Type: dto.EventError, Error: cause.Error()}
	if err := c.svc.uowFactory.NewUnitOfWork(bg).MessageRepository().Create(bg, msg); err == nil {
		ev.Message = toMessageResponse(msg)
	}
	c.emit(bg, ev)
}

func (c *cycle) loop(ctx context.Context, body string) error {
	uow := c.svc.uowFactory.NewUnitOfWork(ctx)
	messages := uow.MessageRepository()

	if strings.TrimSpace(body) != "" {
		msg := &entity.Message{ThreadId: c.thread.Id, Role: entity.RoleUser, Body: body}
		if err := messages.Create(ctx, msg); err != nil {
			return err
		}
		if !c.emit(ctx, dto.ThreadEvent{Type: dto.EventMessageCreated, Message: toMessageResponse(msg)}) {
			return ctx.Err()
		}
	}

	toolRounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		history, err := messages.LastN(ctx, c.thread.Id, c.svc.cfg.HistoryLimit)
		if err != nil {
			return err
		}
		last := lastConversational(history)
		if last == nil {
			return nil
		}

		switch {
		case last.Role == entity.RoleAssistant && len(last.ToolCalls()) > 0:
			toolRounds++
			if toolRounds > c.maxToolRounds {
				return fmt.Errorf("stopped after %d tool rounds", c.maxToolRounds)
			}
			if err := c.runTools(ctx, last); err != nil {
				return err
			}
		case last.Role == entity.RoleUser || last.Role == entity.RoleTool:
			if c.model.IsQueued() {
				if err := c.generateViaJob(ctx, history); err != nil {
					return err
				}
			} else if err := c.reply(ctx, history); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// lastConversational skips system messages, which only carry errors.
func lastConversational(history []*entity.Message) *entity.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != entity.RoleSystem {
			return history[i]
		}
	}
	return nil
}

// buildHistory converts stored messages to the provider format with the
// system prompt first. Tool messages whose assistant call fell out of the
// window are dropped.
func (c *cycle) buildHistory(history []*entity.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	if c.systemPrompt != "" {
		out = append(out, llm.Message{Role: "system", Content: c.systemPrompt})
	}
	leading := true
	for _, m := range history {
		switch m.Role {
		case entity.RoleSystem:
			continue
		case entity.RoleTool:
			if leading {
				continue
			}
			callID, _ := m.BodyJSON["tool_call_id"].(string)
			toolName, _ := m.BodyJSON["tool_name"].(string)
			content := m.Body
			if content == "" {
				content = "tool execution did not finish"
			}
			out = append(out, llm.Message{Role: "tool", Content: content, ToolCallID: callID, Name: toolName})
		case entity.RoleAssistant:
			leading = false
			out = append(out, llm.Message{Role: "assistant", Content: m.Body, ToolCalls: decodeToolCalls(m.ToolCalls())})
		default:
			leading = false
			out = append(out, llm.Message{Role: string(m.Role), Content: m.Body})
		}
	}
	return out
}

func decodeToolCalls(raw []interface{}) []llm.ToolCall {
	if len(raw) == 0 {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var calls []llm.ToolCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil
	}
	return calls
}

func encodeToolCalls(calls []llm.ToolCall) []interface{} {
	data, err := json.Marshal(calls)
	if err != nil {
		return nil
	}
	var out []interface{}
	_ = json.Unmarshal(data, &out)
	return out
}

func toolCallMap(call llm.ToolCall) map[string]interface{} {
	return map[string]interface{}{
		"id":   call.ID,
		"type": call.Type,
		"function": map[string]interface{}{
			"name":      call.Function.Name,
			"arguments": call.Function.Arguments,
		},
	}
}

func (c *cycle) reply(ctx context.Context, history []*entity.Message) error {
	provider, _, err := c.svc.resolver.ChatProvider(ctx, c.model.Id)
	if err != nil {
		return err
	}
	opts := []llm.Option{}
	if defs := c.svc.tools.Definitions(c.toolNames); len(defs) > 0 {
		opts = append(opts, llm.WithTools(defs))
	}
	msgs := c.buildHistory(history)

	if !c.model.SupportsStreaming {
		resp, err := provider.Chat(ctx, msgs, opts...)
		if err != nil {
			return err
		}
		msg := &entity.Message{ThreadId: c.thread.Id, Role: entity.RoleAssistant, Body: resp.Content}
		if len(resp.ToolCalls) > 0 {
			msg.BodyJSON = map[string]interface{}{"tool_calls": encodeToolCalls(resp.ToolCalls)}
		}
		if err := c.svc.uowFactory.NewUnitOfWork(ctx).MessageRepository().Create(ctx, msg); err != nil {
			return err
		}
		if !c.emit(ctx, dto.ThreadEvent{Type: dto.EventMessageCreated, Message: toMessageResponse(msg)}) {
			return ctx.Err()
		}
		return nil
	}

	return c.stream(ctx, provider, msgs, opts)
}

// stream creates the assistant message on the first delta, forwards every
// delta and stores the final content and tool calls. Returning early stops
// the provider stream.
func (c *cycle) stream(ctx context.Context, provider llm.LLMProvider, msgs []llm.Message, opts []llm.Option) error {
	streamCtx, stop := context.WithCancel(ctx)
	defer stop()
	chunks, err := provider.Stream(streamCtx, msgs, opts...)
	if err != nil {
		return err
	}
	repo := c.svc.uowFactory.NewUnitOfWork(ctx).MessageRepository()

	var (
		msg       *entity.Message
		content   strings.Builder
		toolCalls []llm.ToolCall
		streamErr error
	)
	ensure := func() error {
		if msg != nil {
			return nil
		}
		msg = &entity.Message{ThreadId: c.thread.Id, Role: entity.RoleAssistant}
		if err := repo.Create(ctx, msg); err != nil {
			return err
		}
		if !c.emit(ctx, dto.ThreadEvent{Type: dto.EventMessageCreated, Message: toMessageResponse(msg)}) {
			return ctx.Err()
		}
		return nil
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			streamErr = chunk.Err
			break
		}
		if chunk.Content != "" {
			if err := ensure(); err != nil {
				return err
			}
			content.WriteString(chunk.Content)
			if !c.emit(ctx, dto.ThreadEvent{Type: dto.EventMessageChunk, Message: &dto.MessageResponse{Id: msg.Id, ThreadId: c.thread.Id}, Delta: chunk.Content}) {
				return ctx.Err()
			}
		}
		toolCalls = append(toolCalls, chunk.ToolCalls...)
	}
	if streamErr == nil {
		streamErr = ctx.Err()
	}

	if streamErr != nil && msg == nil {
		return streamErr
	}
	if err := ensure(); err != nil {
		return err
	}

	msg.Body = content.String()
	if len(toolCalls) > 0 && streamErr == nil {
		msg.BodyJSON = map[string]interface{}{"tool_calls": encodeToolCalls(toolCalls)}
	}
	if err := repo.Update(context.WithoutCancel(ctx), msg); err != nil {
		return err
	}
	c.emit(ctx, dto.ThreadEvent{Type: dto.EventMessageUpdated, Message: toMessageResponse(msg)})
	return streamErr
}

// runTools executes every tool call of an assistant message in order and
// stores one tool message per call.
func (c *cycle) runTools(ctx context.Context, assistant *entity.Message) error {
	repo := c.svc.uowFactory.NewUnitOfWork(ctx).MessageRepository()
	for _, call := range decodeToolCalls(assistant.ToolCalls()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.runTool(ctx, repo, call); err != nil {
			return err
		}
	}
	return nil
}

func (c *cycle) runTool(ctx context.Context, repo contract.MessageRepository, call llm.ToolCall) error {
	name := call.Function.Name
	msg := &entity.Message{
		ThreadId: c.thread.Id,
		Role:     entity.RoleTool,
		BodyJSON: map[string]interface{}{
			"type":         bodyTypeToolExecution,
			"tool_call_id": call.ID,
			"tool_call":    toolCallMap(call),
			"tool_name":    name,
			"status":       ToolStatusRequested,
		},
	}
	if err := repo.Create(ctx, msg); err != nil {
		return err
	}
	if !c.emit(ctx, dto.ThreadEvent{Type: dto.EventToolCalled, ToolName: name, Message: toMessageResponse(msg)}) {
		return ctx.Err()
	}

	args, err := c.validateToolCall(call)
	if err == nil {
		msg.BodyJSON["arguments"] = args
		msg.BodyJSON["status"] = ToolStatusExecuting
		if err := repo.Update(ctx, msg); err != nil {
			return err
		}
		var result any
		result, err = c.svc.tools.Execute(ctx, name, args)
		if err == nil {
			text, encErr := json.Marshal(result)
			if encErr != nil {
				err = fmt.Errorf("encode tool result: %w", encErr)
			} else {
				msg.Body = string(text)
				msg.BodyJSON["status"] = ToolStatusCompleted
				msg.BodyJSON["result"] = jsonValue(text)
				if err := repo.Update(context.WithoutCancel(ctx), msg); err != nil {
					return err
				}
				c.emit(ctx, dto.ThreadEvent{Type: dto.EventToolSucceeded, ToolName: name, Message: toMessageResponse(msg)})
				return nil
			}
		}
	}

	c.svc.logger.Warn("Thread", "Tool call failed", map[string]interface{}{
		"thread_id": c.thread.Id,
		"tool":      name,
		"error":     err.Error(),
	})
	msg.Body = "Error: " + err.Error()
	msg.BodyJSON["status"] = ToolStatusError
	msg.BodyJSON["error"] = err.Error()
	if err := repo.Update(context.WithoutCancel(ctx), msg); err != nil {
		return err
	}
	c.emit(ctx, dto.ThreadEvent{Type: dto.EventToolFailed, ToolName: name, Message: toMessageResponse(msg), Error: err.Error()})
	return nil
}

func (c *cycle) validateToolCall(call llm.ToolCall) (map[string]any, error) {
	if call.ID == "" {
		return nil, errors.New("tool call has no id")
	}
	if call.Function.Name == "" {
		return nil, errors.New("tool call has no function name")
	}
	enabled := false
	for _, n := range c.toolNames {
		if n == call.Function.Name {
			enabled = true
			break
		}
	}
	if !enabled {
		return nil, fmt.Errorf("tool %s is not enabled on this thread", call.Function.Name)
	}
	raw := strings.TrimSpace(call.Function.Arguments)
	if raw == "" {
		raw = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func jsonValue(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// generateViaJob sends the latest user message through the job queue and
// waits for the job, reporting every state change.
func (c *cycle) generateViaJob(ctx context.Context, history []*entity.Message) error {
	var input *entity.Message
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == entity.RoleUser {
			input = history[i]
			break
		}
	}
	if input == nil {
		return fmt.Errorf("%w: no user message to generate from", ErrValidation)
	}

	created, err := c.svc.jobs.Create(ctx, &dto.CreateGenerationJobRequest{
		ThreadId:         c.thread.Id,
		ProviderId:       c.model.ProviderId,
		ModelId:          c.model.Id,
		InputMessageId:   &input.Id,
		GenerationInputs: map[string]interface{}{"prompt": input.Body},
	})
	if err != nil {
		return err
	}
	jobID := created.Id
	if err := c.svc.jobs.Queue(ctx, jobID); err != nil {
		return err
	}

	lastState := ""
	ticker := time.NewTicker(c.svc.pollEvery)
	defer ticker.Stop()
	for {
		job, err := c.svc.jobs.Load(ctx, jobID)
		if err != nil {
			return err
		}
		if string(job.State) != lastState {
			lastState = string(job.State)
			if !c.emit(ctx, dto.ThreadEvent{Type: dto.EventJobStatus, JobId: &jobID, JobState: lastState}) {
				c.cancelJob(ctx, jobID)
				return ctx.Err()
			}
		}

		switch job.State {
		case entity.JobStateCompleted:
			if job.OutputMessageId != nil {
				out, err := c.svc.uowFactory.NewUnitOfWork(ctx).MessageRepository().FindOne(ctx, specification.ByID{ID: *job.OutputMessageId})
				if err != nil {
					return err
				}
				if out != nil {
					c.emit(ctx, dto.ThreadEvent{Type: dto.EventMessageCreated, Message: toMessageResponse(out)})
				}
			}
			return nil
		case entity.JobStateFailed:
			return fmt.Errorf("generation job failed: %s", job.ErrorMessage)
		case entity.JobStateCancelled:
			return errors.New("generation job was cancelled")
		case entity.JobStateRunning:
			if err := c.svc.jobs.Refresh(ctx, jobID); err != nil {
				c.svc.logger.Debug("Thread", "Job status refresh failed", map[string]interface{}{
					"job_id": jobID,
					"error":  err.Error(),
				})
			}
		}

		select {
		case <-ctx.Done():
			c.cancelJob(ctx, jobID)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *cycle) cancelJob(ctx context.Context, id uuid.UUID) {
	if err := c.svc.jobs.Cancel(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, ErrInvalidTransition) {
		c.svc.logger.Warn("Thread", "Failed to cancel job", map[string]interface{}{
			"job_id": id,
			"error":  err.Error(),
		})
	}
}

func toThreadResponse(t *entity.Thread) *dto.ThreadResponse {
	tools := t.ToolNames
	if tools == nil {
		tools = []string{}
	}
	return &dto.ThreadResponse{
		Id:           t.Id,
		Name:         t.Name,
		ProviderId:   t.ProviderId,
		ModelId:      t.ModelId,
		AssistantId:  t.AssistantId,
		SystemPrompt: t.SystemPrompt,
		ToolNames:    tools,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toMessageResponse(m *entity.Message) *dto.MessageResponse {
	return &dto.MessageResponse{
		Id:        m.Id,
		ThreadId:  m.ThreadId,
		Position:  m.Position,
		Role:      string(m.Role),
		Body:      m.Body,
		BodyJSON:  m.BodyJSON,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
