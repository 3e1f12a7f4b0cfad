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
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/generation"

	"github.com/google/uuid"
)

const (
	defaultMaxRetries        = 3
	defaultMaxConcurrentJobs = 5
	defaultRetryDelayMinutes = 5

	QueueHealthHealthy  = "healthy"
	QueueHealthWarning  = "warning"
	QueueHealthCritical = "critical"
	QueueHealthDisabled = "disabled"
)

// IGenerationJobService runs generation requests that are too slow for a
// request cycle. Jobs move draft → queued → running → completed, and may end
// in failed or cancelled from queued or running.
type IGenerationJobService interface {
	Create(ctx context.Context, req *dto.CreateGenerationJobRequest) (*dto.GenerationJobResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.GenerationJobResponse, error)
	GetAll(ctx context.Context, req *dto.ListJobsRequest) ([]*dto.GenerationJobResponse, int64, error)
	Load(ctx context.Context, id uuid.UUID) (*entity.GenerationJob, error)

	Queue(ctx context.Context, id uuid.UUID) error
	Start(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, result *generation.Result) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	Cancel(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID) error
	// Refresh asks the provider for the status of one running job and applies it.
	Refresh(ctx context.Context, id uuid.UUID) error

	ProcessModelQueue(ctx context.Context, modelID uuid.UUID) (*dto.QueueRunReport, error)
	ProcessAllQueues(ctx context.Context) (*dto.QueueRunReport, error)
	CheckJobStatuses(ctx context.Context) (*dto.StatusCheckReport, error)
	AutoRetryFailedJobs(ctx context.Context) (int, error)
	CleanupOldJobs(ctx context.Context, age time.Duration) (int64, error)
	HandleWebhook(ctx context.Context, id uuid.UUID, payload []byte) error

	QueueStats(ctx context.Context, modelID uuid.UUID) (*dto.QueueStatsResponse, error)
	ListQueues(ctx context.Context) ([]*dto.QueueStatsResponse, error)
	UpdateQueueSettings(ctx context.Context, req *dto.QueueSettingsRequest) (*dto.QueueStatsResponse, error)
}

type generationJobService struct {
	uowFactory unitofwork.RepositoryFactory
	resolver   IProviderResolver
	publisher  events.Publisher
	cfg        config.JobsConfig
	logger     logger.ILogger
	now        func() time.Time
}

func NewGenerationJobService(
	uowFactory unitofwork.RepositoryFactory,
	resolver IProviderResolver,
	publisher events.Publisher,
	cfg config.JobsConfig,
	log logger.ILogger,
) IGenerationJobService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &generationJobService{
		uowFactory: uowFactory,
		resolver:   resolver,
		publisher:  publisher,
		cfg:        cfg,
		logger:     log,
		now:        utcNow,
	}
}

var activeJobStates = []string{string(entity.JobStateQueued), string(entity.JobStateRunning)}

// withThreadSlot runs fn in a transaction that holds the thread row. It fails
// with ErrThreadBusy while another job of the thread is queued or running.
// except is the job being moved, uuid.Nil for a new one.
func (s *generationJobService) withThreadSlot(ctx context.Context, threadID, except uuid.UUID, fn func(uow unitofwork.UnitOfWork) error) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	thread, err := uow.ThreadRepository().FindOne(ctx, specification.ByID{ID: threadID}, specification.ForUpdate{})
	if err != nil {
		return err
	}
	if thread == nil {
		return fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
	}
	specs := []specification.Specification{
		specification.ByThreadID{ThreadID: threadID},
		specification.ByState{States: activeJobStates},
	}
	if except != uuid.Nil {
		specs = append(specs, specification.ExcludeID{ID: except})
	}
	active, err := uow.GenerationJobRepository().Count(ctx, specs...)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: thread %s already has an active generation job", ErrThreadBusy, thread.Name)
	}
	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *generationJobService) Create(ctx context.Context, req *dto.CreateGenerationJobRequest) (*dto.GenerationJobResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: req.ModelId})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, req.ModelId)
	}
	if !m.IsQueued() {
		return nil, fmt.Errorf("%w: model %s is not a generation model", ErrValidation, m.Name)
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	job := &entity.GenerationJob{
		ThreadId:         req.ThreadId,
		ProviderId:       req.ProviderId,
		ModelId:          req.ModelId,
		State:            entity.JobStateDraft,
		InputMessageId:   req.InputMessageId,
		GenerationInputs: req.GenerationInputs,
		MaxRetries:       maxRetries,
	}
	if err := s.withThreadSlot(ctx, req.ThreadId, uuid.Nil, func(tx unitofwork.UnitOfWork) error {
		return tx.GenerationJobRepository().Create(ctx, job)
	}); err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

func (s *generationJobService) Load(ctx context.Context, id uuid.UUID) (*entity.GenerationJob, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	job, err := uow.GenerationJobRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: generation job %s", ErrNotFound, id)
	}
	return job, nil
}

func (s *generationJobService) Show(ctx context.Context, id uuid.UUID) (*dto.GenerationJobResponse, error) {
	job, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

func (s *generationJobService) GetAll(ctx context.Context, req *dto.ListJobsRequest) ([]*dto.GenerationJobResponse, int64, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	filters := []specification.Specification{}
	if req.ThreadId != nil {
		filters = append(filters, specification.ByThreadID{ThreadID: *req.ThreadId})
	}
	if req.ModelId != nil {
		filters = append(filters, specification.ByModelID{ModelID: *req.ModelId})
	}
	if req.State != "" {
		filters = append(filters, specification.ByState{States: []string{req.State}})
	}

	total, err := uow.GenerationJobRepository().Count(ctx, filters...)
	if err != nil {
		return nil, 0, err
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	jobs, err := uow.GenerationJobRepository().FindAll(ctx, append(filters,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: pageSize, Offset: (page - 1) * pageSize},
	)...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*dto.GenerationJobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = toJobResponse(j)
	}
	return out, total, nil
}

// Queue moves a draft job to queued and immediately tries to admit it.
func (s *generationJobService) Queue(ctx context.Context, id uuid.UUID) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.ensureQueue(ctx, job.ModelId); err != nil {
		return err
	}
	fields := map[string]interface{}{"queued_at": s.now()}
	if err := s.withThreadSlot(ctx, job.ThreadId, job.Id, func(tx unitofwork.UnitOfWork) error {
		return s.applyTransition(ctx, tx, job, []entity.JobState{entity.JobStateDraft}, entity.JobStateQueued, fields)
	}); err != nil {
		return err
	}
	s.publishState(ctx, job, fields)
	_, err = s.ProcessModelQueue(ctx, job.ModelId)
	return err
}

// transition applies a conditional state change and publishes the event.
func (s *generationJobService) transition(ctx context.Context, job *entity.GenerationJob, from []entity.JobState, to entity.JobState, fields map[string]interface{}) error {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if err := s.applyTransition(ctx, s.uowFactory.NewUnitOfWork(ctx), job, from, to, fields); err != nil {
		return err
	}
	s.publishState(ctx, job, fields)
	return nil
}

// applyTransition writes the state change through uow without publishing, so
// callers holding a transaction publish after commit.
func (s *generationJobService) applyTransition(ctx context.Context, uow unitofwork.UnitOfWork, job *entity.GenerationJob, from []entity.JobState, to entity.JobState, fields map[string]interface{}) error {
	fields["state"] = string(to)
	ok, err := uow.GenerationJobRepository().TransitionState(ctx, job.Id, from, fields)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s cannot move from %s to %s", ErrInvalidTransition, job.Id, job.State, to)
	}
	job.State = to
	return nil
}

func (s *generationJobService) publishState(ctx context.Context, job *entity.GenerationJob, fields map[string]interface{}) {
	payload := map[string]interface{}{
		"job_id":    job.Id.String(),
		"thread_id": job.ThreadId.String(),
		"model_id":  job.ModelId.String(),
		"state":     string(job.State),
	}
	if msg, ok := fields["error_message"].(string); ok && msg != "" {
		payload["error"] = msg
	}
	if err := s.publisher.Publish(ctx, events.NewEvent(events.JobEventType(string(job.State)), payload)); err != nil {
		s.logger.Warn("JobQueue", "Failed to publish job event", map[string]interface{}{
			"job_id": job.Id,
			"error":  err.Error(),
		})
	}
}

func (s *generationJobService) webhookURL(id uuid.UUID) string {
	if s.cfg.WebhookBaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.WebhookBaseURL, "/") + "/api/jobs/v1/webhook/" + id.String()
}

// Start claims a queued job and submits it to the provider. A submission
// error fails the job. When the provider handle cannot be stored the provider
// job is cancelled and ours fails, so no running job is left without one.
func (s *generationJobService) Start(ctx context.Context, id uuid.UUID) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, job, []entity.JobState{entity.JobStateQueued}, entity.JobStateRunning, map[string]interface{}{
		"started_at": s.now(),
	}); err != nil {
		return err
	}

	submission, err := s.submit(ctx, job)
	if err != nil {
		s.logger.Warn("JobQueue", "Job submission failed", map[string]interface{}{
			"job_id": job.Id,
			"error":  err.Error(),
		})
		return s.Fail(ctx, job.Id, err.Error())
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	ok, err := uow.GenerationJobRepository().TransitionState(ctx, job.Id, []entity.JobState{entity.JobStateRunning}, map[string]interface{}{
		"external_job_id": submission.ExternalID,
		"provider_data":   submission.ProviderData,
	})
	if err != nil || !ok {
		s.cancelAtProvider(context.WithoutCancel(ctx), job, submission.ExternalID)
	}
	if err != nil {
		s.logger.Error("JobQueue", "Failed to record provider job", map[string]interface{}{
			"job_id":      job.Id,
			"external_id": submission.ExternalID,
			"error":       err.Error(),
		})
		if failErr := s.Fail(context.WithoutCancel(ctx), job.Id, "record provider job: "+err.Error()); failErr != nil && !errors.Is(failErr, ErrInvalidTransition) {
			s.logger.Error("JobQueue", "Failed to fail job", map[string]interface{}{
				"job_id": job.Id,
				"error":  failErr.Error(),
			})
		}
		return fmt.Errorf("record provider job %s of %s: %w", submission.ExternalID, job.Id, err)
	}
	if !ok {
		// Cancelled or failed while the provider was accepting it.
		s.logger.Info("JobQueue", "Job stopped during submission", map[string]interface{}{
			"job_id":      job.Id,
			"external_id": submission.ExternalID,
		})
		return nil
	}
	s.logger.Info("JobQueue", "Job started", map[string]interface{}{
		"job_id":      job.Id,
		"external_id": submission.ExternalID,
	})
	return nil
}

func (s *generationJobService) submit(ctx context.Context, job *entity.GenerationJob) (*generation.Submission, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: job.ModelId})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, job.ModelId)
	}

	inputs := map[string]any{}
	for k, v := range job.GenerationInputs {
		inputs[k] = v
	}
	if _, ok := inputs["prompt"]; !ok && job.InputMessageId != nil {
		msg, err := uow.MessageRepository().FindOne(ctx, specification.ByID{ID: *job.InputMessageId})
		if err != nil {
			return nil, err
		}
		if msg != nil {
			inputs["prompt"] = msg.Body
		}
	}

	gen, err := s.resolver.Generator(ctx, job.ProviderId, s.webhookURL(job.Id))
	if err != nil {
		return nil, err
	}
	return gen.Submit(ctx, m.Name, inputs)
}

// Complete finishes a running job and appends the generated outputs to its
// thread as an assistant message.
func (s *generationJobService) Complete(ctx context.Context, id uuid.UUID, result *generation.Result) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if result == nil {
		result = &generation.Result{}
	}

	output := &entity.Message{
		ThreadId: job.ThreadId,
		Role:     entity.RoleAssistant,
		Body:     outputsMarkdown(result.Outputs),
		BodyJSON: map[string]interface{}{
			"type":    "generation_result",
			"job_id":  job.Id.String(),
			"outputs": toAnySlice(result.Outputs),
		},
	}
	if len(result.Metadata) > 0 {
		output.BodyJSON["metadata"] = result.Metadata
	}

	// The message only exists if the job really completes.
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()
	if err := uow.MessageRepository().Create(ctx, output); err != nil {
		return err
	}
	fields := map[string]interface{}{
		"completed_at":      s.now(),
		"output_message_id": output.Id,
		"error_message":     "",
	}
	if err := s.applyTransition(ctx, uow, job, []entity.JobState{entity.JobStateRunning}, entity.JobStateCompleted, fields); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}
	s.publishState(ctx, job, fields)
	s.logger.Info("JobQueue", "Job completed", map[string]interface{}{
		"job_id":  job.Id,
		"outputs": len(result.Outputs),
	})
	return nil
}

func outputsMarkdown(outputs []generation.Output) string {
	if len(outputs) == 0 {
		return "Generation finished without outputs."
	}
	var b strings.Builder
	for i, o := range outputs {
		if i > 0 {
			b.WriteString("\n")
		}
		name := o.Filename
		if name == "" {
			name = fmt.Sprintf("output %d", i+1)
		}
		if strings.HasPrefix(o.ContentType, "image/") {
			fmt.Fprintf(&b, "![%s](%s)", name, o.URL)
		} else {
			fmt.Fprintf(&b, "[%s](%s)", name, o.URL)
		}
	}
	return b.String()
}

func toAnySlice(outputs []generation.Output) []interface{} {
	raw, _ := json.Marshal(outputs)
	var out []interface{}
	_ = json.Unmarshal(raw, &out)
	if out == nil {
		out = []interface{}{}
	}
	return out
}

func (s *generationJobService) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, job, []entity.JobState{entity.JobStateQueued, entity.JobStateRunning}, entity.JobStateFailed, map[string]interface{}{
		"completed_at":  s.now(),
		"error_message": reason,
	})
}

// Cancel stops a queued or running job. The provider is asked to cancel too,
// on a best effort basis.
func (s *generationJobService) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	wasRunning := job.State == entity.JobStateRunning
	if err := s.transition(ctx, job, []entity.JobState{entity.JobStateQueued, entity.JobStateRunning}, entity.JobStateCancelled, map[string]interface{}{
		"completed_at": s.now(),
	}); err != nil {
		return err
	}
	if wasRunning && job.ExternalJobId != "" {
		s.cancelAtProvider(ctx, job, job.ExternalJobId)
	}
	return nil
}

// cancelAtProvider asks the provider to drop a submitted job. Failures are
// only logged.
func (s *generationJobService) cancelAtProvider(ctx context.Context, job *entity.GenerationJob, externalID string) {
	gen, err := s.resolver.Generator(ctx, job.ProviderId, "")
	if err == nil {
		err = gen.Cancel(ctx, externalID)
	}
	if err != nil {
		s.logger.Warn("JobQueue", "Provider cancel failed", map[string]interface{}{
			"job_id":      job.Id,
			"external_id": externalID,
			"error":       err.Error(),
		})
	}
}

// Retry requeues a failed job while it has retries left.
func (s *generationJobService) Retry(ctx context.Context, id uuid.UUID) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if job.State != entity.JobStateFailed {
		return fmt.Errorf("%w: only failed jobs can be retried, job %s is %s", ErrInvalidTransition, job.Id, job.State)
	}
	if job.RetryCount >= job.MaxRetries {
		return fmt.Errorf("%w: job %s has used all %d retries", ErrValidation, job.Id, job.MaxRetries)
	}
	fields := map[string]interface{}{
		"retry_count":     job.RetryCount + 1,
		"queued_at":       s.now(),
		"started_at":      nil,
		"completed_at":    nil,
		"error_message":   "",
		"external_job_id": "",
	}
	if err := s.withThreadSlot(ctx, job.ThreadId, job.Id, func(tx unitofwork.UnitOfWork) error {
		return s.applyTransition(ctx, tx, job, []entity.JobState{entity.JobStateFailed}, entity.JobStateQueued, fields)
	}); err != nil {
		return err
	}
	s.publishState(ctx, job, fields)
	return nil
}

func (s *generationJobService) ensureQueue(ctx context.Context, modelID uuid.UUID) (*entity.GenerationQueue, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	queue, err := uow.GenerationQueueRepository().FindByModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if queue != nil {
		return queue, nil
	}
	queue = &entity.GenerationQueue{
		ModelId:           modelID,
		Enabled:           true,
		MaxConcurrentJobs: defaultMaxConcurrentJobs,
		AutoRetryFailed:   true,
		RetryDelayMinutes: defaultRetryDelayMinutes,
	}
	if err := uow.GenerationQueueRepository().Create(ctx, queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// ProcessModelQueue starts the oldest queued jobs of a model while the queue
// has free slots.
func (s *generationJobService) ProcessModelQueue(ctx context.Context, modelID uuid.UUID) (*dto.QueueRunReport, error) {
	report := &dto.QueueRunReport{}
	uow := s.uowFactory.NewUnitOfWork(ctx)

	queue, err := uow.GenerationQueueRepository().FindByModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if queue == nil || !queue.Enabled {
		return report, nil
	}
	report.Queues = 1

	running, err := uow.GenerationJobRepository().Count(ctx,
		specification.ByModelID{ModelID: modelID},
		specification.ByState{States: []string{string(entity.JobStateRunning)}},
	)
	if err != nil {
		return nil, err
	}
	slots := queue.MaxConcurrentJobs - int(running)
	if slots > 0 {
		queued, err := uow.GenerationJobRepository().FindAll(ctx,
			specification.ByModelID{ModelID: modelID},
			specification.ByState{States: []string{string(entity.JobStateQueued)}},
			specification.OrderBy{Field: "queued_at"},
			specification.OrderBy{Field: "created_at"},
			specification.Pagination{Limit: slots},
		)
		if err != nil {
			return nil, err
		}
		for _, job := range queued {
			if err := s.Start(ctx, job.Id); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					// Another worker took it.
					continue
				}
				report.Failed++
				continue
			}
			reloaded, err := s.Load(ctx, job.Id)
			if err == nil && reloaded.State == entity.JobStateFailed {
				report.Failed++
				continue
			}
			report.Started++
		}
	}

	now := s.now()
	queue.LastProcessedAt = &now
	if err := uow.GenerationQueueRepository().Update(ctx, queue); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *generationJobService) ProcessAllQueues(ctx context.Context) (*dto.QueueRunReport, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	queues, err := uow.GenerationQueueRepository().FindAll(ctx, specification.Filter("enabled", true))
	if err != nil {
		return nil, err
	}
	total := &dto.QueueRunReport{}
	for _, q := range queues {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		r, err := s.ProcessModelQueue(ctx, q.ModelId)
		if err != nil {
			s.logger.Error("JobQueue", "Queue processing failed", map[string]interface{}{
				"model_id": q.ModelId,
				"error":    err.Error(),
			})
			continue
		}
		total.Started += r.Started
		total.Failed += r.Failed
		total.Queues += r.Queues
	}
	return total, nil
}

// applyStatus moves a running job according to the provider status. It
// returns the resulting job state.
func (s *generationJobService) applyStatus(ctx context.Context, job *entity.GenerationJob, status *generation.Status) (entity.JobState, error) {
	switch status.State {
	case generation.StateSucceeded:
		return entity.JobStateCompleted, s.Complete(ctx, job.Id, status.Result)
	case generation.StateFailed:
		reason := status.Error
		if reason == "" {
			reason = "generation failed at provider"
		}
		return entity.JobStateFailed, s.Fail(ctx, job.Id, reason)
	case generation.StateCancelled:
		// Cancelled upstream without our request: give it back to the queue.
		return entity.JobStateQueued, s.transition(ctx, job, []entity.JobState{entity.JobStateRunning}, entity.JobStateQueued, map[string]interface{}{
			"queued_at":       s.now(),
			"started_at":      nil,
			"external_job_id": "",
		})
	default:
		return entity.JobStateRunning, nil
	}
}

func (s *generationJobService) Refresh(ctx context.Context, id uuid.UUID) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if job.State != entity.JobStateRunning || job.ExternalJobId == "" {
		return nil
	}
	_, err = s.refresh(ctx, job)
	return err
}

func (s *generationJobService) refresh(ctx context.Context, job *entity.GenerationJob) (entity.JobState, error) {
	gen, err := s.resolver.Generator(ctx, job.ProviderId, "")
	if err != nil {
		return job.State, err
	}
	status, err := gen.Status(ctx, job.ExternalJobId)
	if err != nil {
		return job.State, err
	}
	return s.applyStatus(ctx, job, status)
}

func (s *generationJobService) CheckJobStatuses(ctx context.Context) (*dto.StatusCheckReport, error) {
	report := &dto.StatusCheckReport{}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	jobs, err := uow.GenerationJobRepository().FindAll(ctx,
		specification.ByState{States: []string{string(entity.JobStateRunning)}},
		specification.WithExternalJob{},
	)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		state, err := s.refresh(ctx, job)
		if err != nil {
			s.logger.Warn("JobQueue", "Status check failed", map[string]interface{}{
				"job_id": job.Id,
				"error":  err.Error(),
			})
			continue
		}
		switch state {
		case entity.JobStateCompleted:
			report.Completed++
		case entity.JobStateFailed:
			report.Failed++
		case entity.JobStateQueued:
			report.Requeued++
		}
	}
	return report, nil
}

func (s *generationJobService) AutoRetryFailedJobs(ctx context.Context) (int, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	queues, err := uow.GenerationQueueRepository().FindAll(ctx, specification.Filter("auto_retry_failed", true))
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, q := range queues {
		cutoff := s.now().Add(-time.Duration(q.RetryDelayMinutes) * time.Minute)
		jobs, err := uow.GenerationJobRepository().FindAll(ctx,
			specification.ByModelID{ModelID: q.ModelId},
			specification.ByState{States: []string{string(entity.JobStateFailed)}},
			specification.RetriesRemaining{},
			specification.CompletedBefore{Time: cutoff},
		)
		if err != nil {
			return retried, err
		}
		for _, job := range jobs {
			if err := s.Retry(ctx, job.Id); err != nil {
				s.logger.Warn("JobQueue", "Auto retry failed", map[string]interface{}{
					"job_id": job.Id,
					"error":  err.Error(),
				})
				continue
			}
			retried++
		}
	}
	if retried > 0 {
		s.logger.Info("JobQueue", "Failed jobs requeued", map[string]interface{}{"count": retried})
	}
	return retried, nil
}

func (s *generationJobService) CleanupOldJobs(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		age = s.cfg.CleanupAge
	}
	if age <= 0 {
		age = 7 * 24 * time.Hour
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.GenerationJobRepository().DeleteWhere(ctx,
		specification.ByState{States: []string{
			string(entity.JobStateCompleted),
			string(entity.JobStateFailed),
			string(entity.JobStateCancelled),
		}},
		specification.CreatedBefore{Time: s.now().Add(-age)},
	)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("JobQueue", "Old jobs removed", map[string]interface{}{"count": deleted})
	}
	return deleted, nil
}

// HandleWebhook applies a provider push notification. Notifications for jobs
// that are no longer running are ignored.
func (s *generationJobService) HandleWebhook(ctx context.Context, id uuid.UUID, payload []byte) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if job.State != entity.JobStateRunning {
		s.logger.Debug("JobQueue", "Ignoring webhook for inactive job", map[string]interface{}{
			"job_id": job.Id,
			"state":  job.State,
		})
		return nil
	}

	gen, err := s.resolver.Generator(ctx, job.ProviderId, "")
	if err != nil {
		return err
	}
	parser, ok := gen.(generation.WebhookParser)
	if !ok {
		return fmt.Errorf("%w: provider of job %s does not accept webhooks", ErrConfiguration, job.Id)
	}
	status, err := parser.ParseWebhook(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if status.ExternalID != "" && job.ExternalJobId != "" && status.ExternalID != job.ExternalJobId {
		return fmt.Errorf("%w: webhook is for %s, job runs %s", ErrValidation, status.ExternalID, job.ExternalJobId)
	}
	_, err = s.applyStatus(ctx, job, status)
	return err
}

func (s *generationJobService) QueueStats(ctx context.Context, modelID uuid.UUID) (*dto.QueueStatsResponse, error) {
	queue, err := s.ensureQueue(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return s.stats(ctx, queue)
}

func (s *generationJobService) stats(ctx context.Context, queue *entity.GenerationQueue) (*dto.QueueStatsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	jobs := uow.GenerationJobRepository()

	running, err := jobs.Count(ctx, specification.ByModelID{ModelID: queue.ModelId},
		specification.ByState{States: []string{string(entity.JobStateRunning)}})
	if err != nil {
		return nil, err
	}
	queued, err := jobs.Count(ctx, specification.ByModelID{ModelID: queue.ModelId},
		specification.ByState{States: []string{string(entity.JobStateQueued)}})
	if err != nil {
		return nil, err
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := jobs.FindAll(ctx, specification.ByModelID{ModelID: queue.ModelId},
		specification.CreatedAfter{Time: startOfDay})
	if err != nil {
		return nil, err
	}

	var (
		queueSecs, procSecs float64
		queueN, procN       int
		completed, failed   int
	)
	for _, j := range today {
		if j.QueuedAt != nil && j.StartedAt != nil {
			queueSecs += j.StartedAt.Sub(*j.QueuedAt).Seconds()
			queueN++
		}
		if j.State == entity.JobStateCompleted && j.StartedAt != nil && j.CompletedAt != nil {
			procSecs += j.CompletedAt.Sub(*j.StartedAt).Seconds()
			procN++
		}
		switch j.State {
		case entity.JobStateCompleted:
			completed++
		case entity.JobStateFailed:
			failed++
		}
	}

	res := &dto.QueueStatsResponse{
		ModelId:           queue.ModelId,
		Enabled:           queue.Enabled,
		MaxConcurrentJobs: queue.MaxConcurrentJobs,
		AutoRetryFailed:   queue.AutoRetryFailed,
		RetryDelayMinutes: queue.RetryDelayMinutes,
		RunningJobs:       running,
		QueuedJobs:        queued,
		TodayJobs:         int64(len(today)),
		SuccessRate:       100,
		LastProcessedAt:   queue.LastProcessedAt,
	}
	if queueN > 0 {
		res.AvgQueueSeconds = queueSecs / float64(queueN)
	}
	if procN > 0 {
		res.AvgProcessingSeconds = procSecs / float64(procN)
	}
	if completed+failed > 0 {
		res.SuccessRate = float64(completed) / float64(completed+failed) * 100
	}
	res.Health = queueHealth(res)
	return res, nil
}

func queueHealth(s *dto.QueueStatsResponse) string {
	switch {
	case !s.Enabled:
		return QueueHealthDisabled
	case s.SuccessRate < 50 || s.QueuedJobs > int64(s.MaxConcurrentJobs*4):
		return QueueHealthCritical
	case s.SuccessRate < 80 || s.QueuedJobs > int64(s.MaxConcurrentJobs):
		return QueueHealthWarning
	default:
		return QueueHealthHealthy
	}
}

func (s *generationJobService) ListQueues(ctx context.Context) ([]*dto.QueueStatsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	queues, err := uow.GenerationQueueRepository().FindAll(ctx, specification.OrderBy{Field: "created_at"})
	if err != nil {
		return nil, err
	}
	out := make([]*dto.QueueStatsResponse, 0, len(queues))
	for _, q := range queues {
		st, err := s.stats(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *generationJobService) UpdateQueueSettings(ctx context.Context, req *dto.QueueSettingsRequest) (*dto.QueueStatsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: req.ModelId})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, req.ModelId)
	}

	queue, err := s.ensureQueue(ctx, req.ModelId)
	if err != nil {
		return nil, err
	}
	if req.Enabled != nil {
		queue.Enabled = *req.Enabled
	}
	if req.MaxConcurrentJobs > 0 {
		queue.MaxConcurrentJobs = req.MaxConcurrentJobs
	}
	if req.AutoRetryFailed != nil {
		queue.AutoRetryFailed = *req.AutoRetryFailed
	}
	if req.RetryDelayMinutes > 0 {
		queue.RetryDelayMinutes = req.RetryDelayMinutes
	}
	if err := uow.GenerationQueueRepository().Update(ctx, queue); err != nil {
		return nil, err
	}
	return s.stats(ctx, queue)
}

func toJobResponse(j *entity.GenerationJob) *dto.GenerationJobResponse {
	return &dto.GenerationJobResponse{
		Id:               j.Id,
		ThreadId:         j.ThreadId,
		ProviderId:       j.ProviderId,
		ModelId:          j.ModelId,
		State:            string(j.State),
		InputMessageId:   j.InputMessageId,
		OutputMessageId:  j.OutputMessageId,
		ExternalJobId:    j.ExternalJobId,
		GenerationInputs: j.GenerationInputs,
		RetryCount:       j.RetryCount,
		MaxRetries:       j.MaxRetries,
		QueuedAt:         j.QueuedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		ErrorMessage:     j.ErrorMessage,
		CreatedAt:        j.CreatedAt,
	}
}
