package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/pkg/chunker"

	"github.com/google/uuid"
)

type IResourceService interface {
	Create(ctx context.Context, req *dto.CreateResourceRequest) (*dto.ResourceResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.ResourceResponse, error)
	GetAll(ctx context.Context, req *dto.ListResourcesRequest) ([]*dto.ResourceResponse, int64, error)
	Update(ctx context.Context, req *dto.UpdateResourceRequest) (*dto.ResourceResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error

	ListChunks(ctx context.Context, id uuid.UUID) ([]*dto.ChunkResponse, error)
	GetAttachment(ctx context.Context, id uuid.UUID, name string) (*entity.ResourceAttachment, error)

	// EnqueueProcessing hands the ids to the background consumer.
	EnqueueProcessing(ctx context.Context, ids []uuid.UUID) error
}

type resourceService struct {
	uowFactory  unitofwork.RepositoryFactory
	collections ICollectionService
	publisher   IPublisherService
	cfg         config.KnowledgeConfig
	logger      logger.ILogger
}

func NewResourceService(
	uowFactory unitofwork.RepositoryFactory,
	collections ICollectionService,
	publisher IPublisherService,
	cfg config.KnowledgeConfig,
	log logger.ILogger,
) IResourceService {
	return &resourceService{
		uowFactory:  uowFactory,
		collections: collections,
		publisher:   publisher,
		cfg:         cfg,
		logger:      log,
	}
}

func (s *resourceService) Create(ctx context.Context, req *dto.CreateResourceRequest) (*dto.ResourceResponse, error) {
	if strings.TrimSpace(req.SourceURI) == "" && req.Content == "" {
		return nil, fmt.Errorf("%w: either source_uri or content is required", ErrValidation)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	resource := &entity.Resource{
		Name:               req.Name,
		SourceURI:          strings.TrimSpace(req.SourceURI),
		ContentType:        req.ContentType,
		Retriever:          orDefault(req.Retriever, "default"),
		Parser:             req.Parser,
		Chunker:            req.Chunker,
		TargetChunkSize:    req.TargetChunkSize,
		TargetChunkOverlap: req.TargetChunkOverlap,
		State:              entity.ResourceStateDraft,
		CollectionIds:      uniqueIDs(req.CollectionIds),
	}
	if req.Content != "" {
		resource.RawContent = []byte(req.Content)
	}

	// Unset settings come from the first collection, then from the defaults.
	parserName, chunkerName := "default", "default"
	size, overlap := chunker.DefaultSize, chunker.DefaultOverlap
	if len(resource.CollectionIds) > 0 {
		collections, err := uow.CollectionRepository().FindAll(ctx, specification.ByIDs{IDs: resource.CollectionIds})
		if err != nil {
			return nil, err
		}
		if len(collections) != len(resource.CollectionIds) {
			return nil, fmt.Errorf("%w: some collections do not exist", ErrNotFound)
		}
		for _, c := range collections {
			if c.Id == resource.CollectionIds[0] {
				parserName, chunkerName = c.DefaultParser, c.DefaultChunker
				size, overlap = c.DefaultChunkSize, c.DefaultChunkOverlap
			}
		}
	}
	resource.Parser = orDefault(resource.Parser, parserName)
	resource.Chunker = orDefault(resource.Chunker, chunkerName)
	resource.TargetChunkSize = orDefaultInt(resource.TargetChunkSize, size)
	resource.TargetChunkOverlap = orDefaultInt(resource.TargetChunkOverlap, overlap)

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.ResourceRepository().Create(ctx, resource); err != nil {
		return nil, err
	}
	for _, cid := range resource.CollectionIds {
		if err := uow.ResourceRepository().AddToCollection(ctx, resource.Id, cid); err != nil {
			return nil, err
		}
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("Resource", "Resource created", map[string]interface{}{
		"resource_id": resource.Id,
		"name":        resource.Name,
		"collections": len(resource.CollectionIds),
	})

	if req.Process {
		if err := s.EnqueueProcessing(ctx, []uuid.UUID{resource.Id}); err != nil {
			s.logger.Warn("Resource", "Failed to enqueue processing", map[string]interface{}{
				"resource_id": resource.Id,
				"error":       err.Error(),
			})
		}
	}
	return s.Show(ctx, resource.Id)
}

func (s *resourceService) find(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) (*entity.Resource, error) {
	resource, err := uow.ResourceRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, fmt.Errorf("%w: resource %s", ErrNotFound, id)
	}
	return resource, nil
}

func (s *resourceService) Show(ctx context.Context, id uuid.UUID) (*dto.ResourceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	resource, err := s.find(ctx, uow, id)
	if err != nil {
		return nil, err
	}
	res, err := s.toResponse(ctx, uow, resource)
	if err != nil {
		return nil, err
	}
	res.Content = resource.Content
	return res, nil
}

func (s *resourceService) GetAll(ctx context.Context, req *dto.ListResourcesRequest) ([]*dto.ResourceResponse, int64, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	filters := []specification.Specification{}
	if req.CollectionId != nil {
		filters = append(filters, specification.InCollection{CollectionID: *req.CollectionId})
	}
	if req.State != "" {
		filters = append(filters, specification.ByState{States: []string{req.State}})
	}
	if req.Search != "" {
		filters = append(filters, specification.Search{Field: "name", Term: req.Search})
	}

	total, err := uow.ResourceRepository().Count(ctx, filters...)
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
	specs := append(filters,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: pageSize, Offset: (page - 1) * pageSize},
	)
	resources, err := uow.ResourceRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, 0, err
	}

	result := make([]*dto.ResourceResponse, 0, len(resources))
	for _, r := range resources {
		res, err := s.toResponse(ctx, uow, r)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, res)
	}
	return result, total, nil
}

// Update saves new settings. A changed source or inline content sends the
// resource back to draft; changed chunking settings send it back to parsed.
func (s *resourceService) Update(ctx context.Context, req *dto.UpdateResourceRequest) (*dto.ResourceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	resource, err := s.find(ctx, uow, req.Id)
	if err != nil {
		return nil, err
	}

	sourceChanged := strings.TrimSpace(req.SourceURI) != resource.SourceURI ||
		(req.Content != "" && req.Content != string(resource.RawContent)) ||
		orDefault(req.Retriever, resource.Retriever) != resource.Retriever ||
		orDefault(req.Parser, resource.Parser) != resource.Parser ||
		(req.ContentType != "" && req.ContentType != resource.ContentType)
	chunkingChanged := orDefault(req.Chunker, resource.Chunker) != resource.Chunker ||
		orDefaultInt(req.TargetChunkSize, resource.TargetChunkSize) != resource.TargetChunkSize ||
		req.TargetChunkOverlap != resource.TargetChunkOverlap

	resource.Name = req.Name
	resource.SourceURI = strings.TrimSpace(req.SourceURI)
	if req.ContentType != "" {
		resource.ContentType = req.ContentType
	}
	if req.Content != "" {
		resource.RawContent = []byte(req.Content)
	}
	resource.Retriever = orDefault(req.Retriever, resource.Retriever)
	resource.Parser = orDefault(req.Parser, resource.Parser)
	resource.Chunker = orDefault(req.Chunker, resource.Chunker)
	resource.TargetChunkSize = orDefaultInt(req.TargetChunkSize, resource.TargetChunkSize)
	resource.TargetChunkOverlap = req.TargetChunkOverlap

	switch {
	case sourceChanged && resource.State != entity.ResourceStateDraft:
		resource.State = entity.ResourceStateDraft
	case chunkingChanged && (resource.State == entity.ResourceStateChunked || resource.State == entity.ResourceStateReady):
		resource.State = entity.ResourceStateParsed
	}
	if resource.SourceURI == "" && len(resource.RawContent) == 0 {
		return nil, fmt.Errorf("%w: either source_uri or content is required", ErrValidation)
	}

	if err := uow.ResourceRepository().Update(ctx, resource); err != nil {
		return nil, err
	}
	return s.Show(ctx, resource.Id)
}

// Delete removes the resource with its vectors, chunks, attachments and
// memberships.
func (s *resourceService) Delete(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.find(ctx, uow, id); err != nil {
		return err
	}

	chunks, err := uow.ChunkRepository().FindAll(ctx, specification.ByResourceID{ResourceID: id})
	if err != nil {
		return err
	}
	collectionIDs, err := uow.ResourceRepository().CollectionIDs(ctx, id)
	if err != nil {
		return err
	}
	s.collections.DeleteResourceVectors(ctx, collectionIDs, chunkIDs(chunks))

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChunkRepository().DeleteByResource(ctx, id); err != nil {
		return err
	}
	if err := uow.AttachmentRepository().DeleteByResource(ctx, id); err != nil {
		return err
	}
	if err := uow.ResourceRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.logger.Info("Resource", "Resource deleted", map[string]interface{}{
		"resource_id": id,
		"chunks":      len(chunks),
	})
	return nil
}

func (s *resourceService) ListChunks(ctx context.Context, id uuid.UUID) ([]*dto.ChunkResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.find(ctx, uow, id); err != nil {
		return nil, err
	}
	chunks, err := uow.ChunkRepository().FindAll(ctx,
		specification.ByResourceID{ResourceID: id},
		specification.OrderBy{Field: "sequence"},
	)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ChunkResponse, len(chunks))
	for i, c := range chunks {
		out[i] = &dto.ChunkResponse{
			Id:         c.Id,
			ResourceId: c.ResourceId,
			Sequence:   c.Sequence,
			Content:    c.Content,
			Metadata:   c.Metadata,
		}
	}
	return out, nil
}

func (s *resourceService) GetAttachment(ctx context.Context, id uuid.UUID, name string) (*entity.ResourceAttachment, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	attachments, err := uow.AttachmentRepository().FindAll(ctx,
		specification.ByResourceID{ResourceID: id},
		specification.Filter("name", name),
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, fmt.Errorf("%w: attachment %s of resource %s", ErrNotFound, name, id)
	}
	return attachments[0], nil
}

func (s *resourceService) EnqueueProcessing(ctx context.Context, ids []uuid.UUID) error {
	if s.publisher == nil {
		return fmt.Errorf("%w: no processing queue configured", ErrConfiguration)
	}
	payload, err := json.Marshal(dto.PublishProcessResourcesMessage{ResourceIds: ids})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, payload)
}

func (s *resourceService) toResponse(ctx context.Context, uow unitofwork.UnitOfWork, r *entity.Resource) (*dto.ResourceResponse, error) {
	collectionIDs, err := uow.ResourceRepository().CollectionIDs(ctx, r.Id)
	if err != nil {
		return nil, err
	}
	if collectionIDs == nil {
		collectionIDs = []uuid.UUID{}
	}
	count, err := uow.ChunkRepository().Count(ctx, specification.ByResourceID{ResourceID: r.Id})
	if err != nil {
		return nil, err
	}
	return &dto.ResourceResponse{
		Id:                 r.Id,
		Name:               r.Name,
		SourceURI:          r.SourceURI,
		ContentType:        r.ContentType,
		Retriever:          r.Retriever,
		Parser:             r.Parser,
		Chunker:            r.Chunker,
		TargetChunkSize:    r.TargetChunkSize,
		TargetChunkOverlap: r.TargetChunkOverlap,
		State:              string(r.State),
		Locked:             r.IsLocked(utcNow().Add(-s.cfg.StaleLockAfter)),
		LastError:          r.LastError,
		CollectionIds:      collectionIDs,
		ChunkCount:         count,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}, nil
}
