package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/chunker"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/parser"
	"llm-knowledge-be/pkg/retriever"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

const (
	StageRetrieve = "retrieve"
	StageParse    = "parse"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageReset    = "reset"
)

// IPipelineService moves resources through draft, retrieved, parsed,
// chunked and ready. Every stage takes an optional id filter; with no ids it
// claims every resource in the stage's source state.
type IPipelineService interface {
	Retrieve(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error)
	Parse(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error)
	Chunk(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error)
	Embed(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error)
	Process(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error)
	ProcessPending(ctx context.Context) (*dto.PipelineReport, error)

	Unlock(ctx context.Context, ids []uuid.UUID) error
	Reset(ctx context.Context, ids []uuid.UUID) error
}

type pipelineService struct {
	uowFactory  unitofwork.RepositoryFactory
	retrievers  *retriever.Registry
	parsers     *parser.Registry
	chunkers    *chunker.Registry
	collections ICollectionService
	publisher   events.Publisher
	cfg         config.KnowledgeConfig
	logger      logger.ILogger
	pool        *ants.Pool
	now         func() time.Time
}

func NewPipelineService(
	uowFactory unitofwork.RepositoryFactory,
	retrievers *retriever.Registry,
	parsers *parser.Registry,
	chunkers *chunker.Registry,
	collections ICollectionService,
	publisher events.Publisher,
	cfg config.KnowledgeConfig,
	log logger.ILogger,
) (IPipelineService, error) {
	workers := cfg.SweepWorkers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create pipeline worker pool: %w", err)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.StaleLockAfter <= 0 {
		cfg.StaleLockAfter = 10 * time.Minute
	}
	return &pipelineService{
		uowFactory:  uowFactory,
		retrievers:  retrievers,
		parsers:     parsers,
		chunkers:    chunkers,
		collections: collections,
		publisher:   publisher,
		cfg:         cfg,
		logger:      log,
		pool:        pool,
		now:         utcNow,
	}, nil
}

type stageFunc func(ctx context.Context, r *entity.Resource) error

// runStage claims the resources in from (optionally restricted to ids) and
// runs fn on each of them in the worker pool. A failure is recorded on the
// resource and in the report; it never stops the other resources.
func (s *pipelineService) runStage(ctx context.Context, stage string, from entity.ResourceState, ids []uuid.UUID, fn stageFunc) (*dto.PipelineReport, int, error) {
	specs := []specification.Specification{
		specification.ByState{States: []string{string(from)}},
	}
	if len(ids) > 0 {
		specs = append(specs, specification.ByIDs{IDs: ids})
	}
	return s.runClaimed(ctx, stage, specs, fn)
}

// runClaimed locks every resource matching specs for one holder, runs fn on
// each and unlocks it again.
func (s *pipelineService) runClaimed(ctx context.Context, stage string, specs []specification.Specification, fn stageFunc) (*dto.PipelineReport, int, error) {
	report := &dto.PipelineReport{Failures: []dto.ResourceFailure{}}

	holder := uuid.NewString()
	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	claimed, err := uow.ResourceRepository().Lock(ctx, holder, now, now.Add(-s.cfg.StaleLockAfter), specs...)
	if err != nil {
		return nil, 0, err
	}
	if len(claimed) == 0 {
		return report, 0, nil
	}

	s.logger.Debug("Pipeline", "Resources claimed", map[string]interface{}{
		"stage":  stage,
		"count":  len(claimed),
		"holder": holder,
	})

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		succeeded int
	)
	for _, r := range claimed {
		r := r
		wg.Add(1)
		task := func() {
			defer wg.Done()
			err := s.runOne(ctx, stage, holder, r, fn)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, dto.ResourceFailure{
					ResourceId: r.Id,
					Stage:      stage,
					Error:      err.Error(),
				})
				return
			}
			succeeded++
		}
		if err := s.pool.Submit(task); err != nil {
			// Pool closed or overloaded, run inline.
			task()
		}
	}
	wg.Wait()
	return report, succeeded, nil
}

func (s *pipelineService) runOne(ctx context.Context, stage, holder string, r *entity.Resource, fn stageFunc) (err error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	defer func() {
		if unlockErr := uow.ResourceRepository().Unlock(context.WithoutCancel(ctx), r.Id, holder); unlockErr != nil {
			s.logger.Error("Pipeline", "Failed to release resource lock", map[string]interface{}{
				"resource_id": r.Id,
				"error":       unlockErr.Error(),
			})
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s stage: %v", stage, rec)
		}
		if err != nil {
			s.recordFailure(ctx, uow, stage, r, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, r)
}

func (s *pipelineService) recordFailure(ctx context.Context, uow unitofwork.UnitOfWork, stage string, r *entity.Resource, cause error) {
	s.logger.Warn("Pipeline", "Resource stage failed", map[string]interface{}{
		"stage":       stage,
		"resource_id": r.Id,
		"name":        r.Name,
		"error":       cause.Error(),
	})
	if err := uow.ResourceRepository().UpdateFields(context.WithoutCancel(ctx), r.Id, map[string]interface{}{
		"last_error": fmt.Sprintf("%s: %s", stage, cause.Error()),
	}); err != nil {
		s.logger.Error("Pipeline", "Failed to save resource error", map[string]interface{}{
			"resource_id": r.Id,
			"error":       err.Error(),
		})
	}
}

func (s *pipelineService) advance(ctx context.Context, uow unitofwork.UnitOfWork, r *entity.Resource, to entity.ResourceState, fields map[string]interface{}) error {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["state"] = string(to)
	fields["last_error"] = ""
	if err := uow.ResourceRepository().UpdateFields(ctx, r.Id, fields); err != nil {
		return err
	}
	s.publishStateChange(ctx, r.Id, r.State, to)
	r.State = to
	return nil
}

func (s *pipelineService) publishStateChange(ctx context.Context, id uuid.UUID, from, to entity.ResourceState) {
	if err := s.publisher.Publish(ctx, events.NewEvent(events.TypeResourceStateChanged, map[string]interface{}{
		"resource_id": id.String(),
		"from":        string(from),
		"to":          string(to),
	})); err != nil {
		s.logger.Warn("Pipeline", "Failed to publish state change", map[string]interface{}{"error": err.Error()})
	}
}

func (s *pipelineService) Retrieve(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error) {
	report, n, err := s.runStage(ctx, StageRetrieve, entity.ResourceStateDraft, ids, s.retrieveOne)
	if err != nil {
		return nil, err
	}
	report.Retrieved = n
	return report, nil
}

func (s *pipelineService) retrieveOne(ctx context.Context, r *entity.Resource) error {
	rt, err := s.retrievers.Get(r.Retriever)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if s.cfg.RetrieveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RetrieveTimeout)
		defer cancel()
	}

	out, err := rt.Retrieve(ctx, retriever.Source{
		Name:        r.Name,
		URI:         r.SourceURI,
		ContentType: r.ContentType,
		Inline:      r.RawContent,
	})
	if err != nil {
		return err
	}
	if len(out.Data) == 0 {
		return retriever.ErrNoContent
	}
	if s.cfg.MaxDocumentBytes > 0 && int64(len(out.Data)) > s.cfg.MaxDocumentBytes {
		return fmt.Errorf("document is %d bytes, limit is %d", len(out.Data), s.cfg.MaxDocumentBytes)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	return s.advance(ctx, uow, r, entity.ResourceStateRetrieved, map[string]interface{}{
		"raw_content":  out.Data,
		"content_type": out.ContentType,
	})
}

func (s *pipelineService) Parse(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error) {
	report, n, err := s.runStage(ctx, StageParse, entity.ResourceStateRetrieved, ids, s.parseOne)
	if err != nil {
		return nil, err
	}
	report.Parsed = n
	return report, nil
}

func (s *pipelineService) parseOne(ctx context.Context, r *entity.Resource) error {
	result, err := s.parsers.Parse(ctx, r.Parser, parser.Document{
		Name:        r.Name,
		ContentType: r.ContentType,
		SourceURI:   r.SourceURI,
		Data:        r.RawContent,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.Markdown) == "" {
		return parser.ErrEmptyOutput
	}
	for _, w := range result.Warnings {
		s.logger.Warn("Pipeline", "Parser warning", map[string]interface{}{
			"resource_id": r.Id,
			"warning":     w,
		})
	}

	content := result.Markdown
	for _, img := range result.Images {
		content = strings.ReplaceAll(content, parser.AttachmentScheme+img.Name, AttachmentURL(r.Id, img.Name))
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.AttachmentRepository().DeleteByResource(ctx, r.Id); err != nil {
		return err
	}
	for _, img := range result.Images {
		if err := uow.AttachmentRepository().Create(ctx, &entity.ResourceAttachment{
			ResourceId: r.Id,
			Name:       img.Name,
			MimeType:   img.MimeType,
			Data:       img.Data,
		}); err != nil {
			return err
		}
	}
	if err := uow.ResourceRepository().UpdateFields(ctx, r.Id, map[string]interface{}{
		"content":    content,
		"state":      string(entity.ResourceStateParsed),
		"last_error": "",
	}); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}
	s.publishStateChange(ctx, r.Id, r.State, entity.ResourceStateParsed)
	return nil
}

// AttachmentURL is the API path an extracted image is served from.
func AttachmentURL(resourceID uuid.UUID, name string) string {
	return fmt.Sprintf("/api/resources/v1/%s/attachments/%s", resourceID, name)
}

func (s *pipelineService) Chunk(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error) {
	report, n, err := s.runStage(ctx, StageChunk, entity.ResourceStateParsed, ids, s.chunkOne)
	if err != nil {
		return nil, err
	}
	report.Chunked = n
	return report, nil
}

func (s *pipelineService) chunkOne(ctx context.Context, r *entity.Resource) error {
	c, err := s.chunkers.Get(r.Chunker)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	pieces, err := c.Chunk(r.Content, chunker.Settings{
		Size:    r.TargetChunkSize,
		Overlap: r.TargetChunkOverlap,
	})
	if err != nil {
		return err
	}
	if len(pieces) == 0 {
		return chunker.ErrEmptyContent
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	// Vectors of the previous chunks are removed before the transaction; the
	// store is not transactional anyway.
	old, err := uow.ChunkRepository().FindAll(ctx, specification.ByResourceID{ResourceID: r.Id})
	if err != nil {
		return err
	}
	if len(old) > 0 {
		collectionIDs, err := uow.ResourceRepository().CollectionIDs(ctx, r.Id)
		if err != nil {
			return err
		}
		s.collections.DeleteResourceVectors(ctx, collectionIDs, chunkIDs(old))
	}

	chunks := make([]*entity.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &entity.Chunk{
			ResourceId: r.Id,
			Sequence:   i + 1,
			Content:    p.Text,
			Metadata:   p.Metadata,
		}
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChunkRepository().DeleteByResource(ctx, r.Id); err != nil {
		return err
	}
	if err := uow.ChunkRepository().CreateBatch(ctx, chunks); err != nil {
		return err
	}
	if err := uow.ResourceRepository().UpdateFields(ctx, r.Id, map[string]interface{}{
		"state":      string(entity.ResourceStateChunked),
		"last_error": "",
	}); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.logger.Debug("Pipeline", "Resource chunked", map[string]interface{}{
		"resource_id": r.Id,
		"chunks":      len(chunks),
	})
	s.publishStateChange(ctx, r.Id, r.State, entity.ResourceStateChunked)
	return nil
}

// resetChunkless moves chunked or ready resources that lost their chunks back
// to parsed so the chunk stage picks them up again.
func (s *pipelineService) resetChunkless(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error) {
	specs := []specification.Specification{
		specification.ByState{States: []string{
			string(entity.ResourceStateChunked),
			string(entity.ResourceStateReady),
		}},
		specification.WithoutChunks{},
	}
	if len(ids) > 0 {
		specs = append(specs, specification.ByIDs{IDs: ids})
	}

	report, n, err := s.runClaimed(ctx, StageReset, specs, func(ctx context.Context, r *entity.Resource) error {
		return s.advance(ctx, s.uowFactory.NewUnitOfWork(ctx), r, entity.ResourceStateParsed, nil)
	})
	if err != nil {
		return nil, err
	}
	report.Reset = n
	return report, nil
}

// Embed claims chunked resources and embeds them into every collection they
// belong to. A resource in no collection is skipped and stays chunked.
func (s *pipelineService) Embed(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error) {
	report := &dto.PipelineReport{Failures: []dto.ResourceFailure{}}

	specs := []specification.Specification{
		specification.ByState{States: []string{string(entity.ResourceStateChunked)}},
	}
	if len(ids) > 0 {
		specs = append(specs, specification.ByIDs{IDs: ids})
	}

	holder := uuid.NewString()
	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	claimed, err := uow.ResourceRepository().Lock(ctx, holder, now, now.Add(-s.cfg.StaleLockAfter), specs...)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, r := range claimed {
			if err := uow.ResourceRepository().Unlock(context.WithoutCancel(ctx), r.Id, holder); err != nil {
				s.logger.Error("Pipeline", "Failed to release resource lock", map[string]interface{}{
					"resource_id": r.Id,
					"error":       err.Error(),
				})
			}
		}
	}()

	byCollection := make(map[uuid.UUID][]uuid.UUID)
	order := make([]uuid.UUID, 0)
	for _, r := range claimed {
		collectionIDs, err := uow.ResourceRepository().CollectionIDs(ctx, r.Id)
		if err != nil {
			return nil, err
		}
		if len(collectionIDs) == 0 {
			report.Skipped++
			continue
		}
		for _, cid := range collectionIDs {
			if _, ok := byCollection[cid]; !ok {
				order = append(order, cid)
			}
			byCollection[cid] = append(byCollection[cid], r.Id)
		}
	}

	failed := make(map[uuid.UUID]string)
	ready := make(map[uuid.UUID]struct{})
	for _, cid := range order {
		members := byCollection[cid]
		res, err := s.collections.EmbedResources(ctx, cid, members)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			for _, rid := range members {
				failed[rid] = fmt.Sprintf("collection %s: %s", cid, err.Error())
			}
			continue
		}
		for _, f := range res.Failures {
			for _, rid := range f.ResourceIds {
				failed[rid] = fmt.Sprintf("collection %s batch %d: %s", cid, f.Batch, f.Error)
			}
		}
		for _, rid := range res.ReadyResourceIds {
			ready[rid] = struct{}{}
		}
	}

	// A resource embedded in one collection but failing in another is not ready.
	for _, r := range claimed {
		msg, bad := failed[r.Id]
		if !bad {
			if _, ok := ready[r.Id]; ok {
				report.Embedded++
				s.publishStateChange(ctx, r.Id, entity.ResourceStateChunked, entity.ResourceStateReady)
			}
			continue
		}
		report.Failures = append(report.Failures, dto.ResourceFailure{
			ResourceId: r.Id,
			Stage:      StageEmbed,
			Error:      msg,
		})
		if err := uow.ResourceRepository().UpdateFields(context.WithoutCancel(ctx), r.Id, map[string]interface{}{
			"state":      string(entity.ResourceStateChunked),
			"last_error": StageEmbed + ": " + msg,
		}); err != nil {
			s.logger.Error("Pipeline", "Failed to save resource error", map[string]interface{}{
				"resource_id": r.Id,
				"error":       err.Error(),
			})
		}
	}
	return report, nil
}

func (s *pipelineService) Process(ctx context.Context, ids []uuid.UUID) (*dto.PipelineReport, error) {
	report := &dto.PipelineReport{Failures: []dto.ResourceFailure{}}

	steps := []func(context.Context, []uuid.UUID) (*dto.PipelineReport, error){
		s.Retrieve,
		s.Parse,
		s.resetChunkless,
		s.Chunk,
		s.Embed,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := step(ctx, ids)
		if err != nil {
			return report, err
		}
		report.Merge(res)
	}

	s.logger.Info("Pipeline", "Processing finished", map[string]interface{}{
		"retrieved": report.Retrieved,
		"parsed":    report.Parsed,
		"reset":     report.Reset,
		"chunked":   report.Chunked,
		"embedded":  report.Embedded,
		"skipped":   report.Skipped,
		"failures":  len(report.Failures),
	})
	return report, nil
}

func (s *pipelineService) ProcessPending(ctx context.Context) (*dto.PipelineReport, error) {
	return s.Process(ctx, nil)
}

func (s *pipelineService) Unlock(ctx context.Context, ids []uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	for _, id := range ids {
		if err := uow.ResourceRepository().UpdateFields(ctx, id, map[string]interface{}{
			"lock_timestamp": nil,
			"lock_holder":    nil,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Reset sends resources back to draft. Chunks and vectors are kept until the
// chunk stage replaces them.
func (s *pipelineService) Reset(ctx context.Context, ids []uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	resources, err := uow.ResourceRepository().FindAll(ctx, specification.ByIDs{IDs: ids})
	if err != nil {
		return err
	}
	for _, r := range resources {
		if r.State == entity.ResourceStateDraft {
			continue
		}
		if err := s.advance(ctx, uow, r, entity.ResourceStateDraft, map[string]interface{}{
			"lock_timestamp": nil,
			"lock_holder":    nil,
		}); err != nil {
			return err
		}
	}
	return nil
}
