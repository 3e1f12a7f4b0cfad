package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/internal/tracer"
	"llm-knowledge-be/pkg/chunker"
	"llm-knowledge-be/pkg/embedding"
	"llm-knowledge-be/pkg/events"
	"llm-knowledge-be/pkg/vectorstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const dimensionProbeText = "dimension probe"

type ICollectionService interface {
	Create(ctx context.Context, req *dto.CreateCollectionRequest) (*dto.CollectionResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.CollectionResponse, error)
	GetAll(ctx context.Context) ([]*dto.CollectionResponse, error)
	Update(ctx context.Context, req *dto.UpdateCollectionRequest) (*dto.CollectionResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddResources(ctx context.Context, id uuid.UUID, resourceIDs []uuid.UUID) error
	RemoveResources(ctx context.Context, id uuid.UUID, resourceIDs []uuid.UUID) error
	ApplyDefaults(ctx context.Context, id uuid.UUID) (int, error)

	// EmbedResources embeds the chunks of member resources. With no ids it
	// takes every member resource in the chunked state.
	EmbedResources(ctx context.Context, id uuid.UUID, resourceIDs []uuid.UUID) (*dto.EmbedReport, error)
	Reindex(ctx context.Context, id uuid.UUID) (*dto.EmbedReport, error)

	// DeleteResourceVectors removes the vectors of the given chunks from the
	// store of every collection in collectionIDs. Failures are logged.
	DeleteResourceVectors(ctx context.Context, collectionIDs []uuid.UUID, chunkIDs []uuid.UUID)
}

type collectionService struct {
	uowFactory unitofwork.RepositoryFactory
	resolver   IProviderResolver
	publisher  events.Publisher
	cfg        config.KnowledgeConfig
	logger     logger.ILogger
}

func NewCollectionService(
	uowFactory unitofwork.RepositoryFactory,
	resolver IProviderResolver,
	publisher events.Publisher,
	cfg config.KnowledgeConfig,
	log logger.ILogger,
) ICollectionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &collectionService{
		uowFactory: uowFactory,
		resolver:   resolver,
		publisher:  publisher,
		cfg:        cfg,
		logger:     log,
	}
}

// StoreCollectionName is the sanitized index name of a collection in its store.
func StoreCollectionName(prefix string, collectionID uuid.UUID) string {
	return vectorstore.SanitizeCollectionName(fmt.Sprintf("%s_%s", prefix, collectionID))
}

func (s *collectionService) storeName(id uuid.UUID) string {
	return StoreCollectionName(s.cfg.CollectionPrefix, id)
}

func (s *collectionService) find(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) (*entity.Collection, error) {
	collection, err := uow.CollectionRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, id)
	}
	return collection, nil
}

func (s *collectionService) Create(ctx context.Context, req *dto.CreateCollectionRequest) (*dto.CollectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	collection := &entity.Collection{
		Name:                req.Name,
		Description:         req.Description,
		Active:              req.Active == nil || *req.Active,
		EmbeddingModelId:    req.EmbeddingModelId,
		StoreId:             req.StoreId,
		DefaultChunker:      orDefault(req.DefaultChunker, "default"),
		DefaultParser:       orDefault(req.DefaultParser, "default"),
		DefaultChunkSize:    orDefaultInt(req.DefaultChunkSize, chunker.DefaultSize),
		DefaultChunkOverlap: orDefaultInt(req.DefaultChunkOverlap, chunker.DefaultOverlap),
	}
	if err := s.validateRefs(ctx, uow, collection); err != nil {
		return nil, err
	}
	if err := uow.CollectionRepository().Create(ctx, collection); err != nil {
		return nil, err
	}

	s.logger.Info("Collection", "Collection created", map[string]interface{}{
		"collection_id": collection.Id,
		"name":          collection.Name,
	})
	return s.toResponse(ctx, uow, collection)
}

func (s *collectionService) validateRefs(ctx context.Context, uow unitofwork.UnitOfWork, c *entity.Collection) error {
	if c.EmbeddingModelId != nil {
		m, err := uow.ModelRepository().FindOne(ctx, specification.ByID{ID: *c.EmbeddingModelId})
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: embedding model %s does not exist", ErrValidation, *c.EmbeddingModelId)
		}
		if m.Use != entity.ModelUseEmbedding {
			return fmt.Errorf("%w: model %s is not an embedding model", ErrValidation, m.Name)
		}
	}
	if c.StoreId != nil {
		st, err := uow.StoreRepository().FindOne(ctx, specification.ByID{ID: *c.StoreId})
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("%w: store %s does not exist", ErrValidation, *c.StoreId)
		}
	}
	return nil
}

func (s *collectionService) Show(ctx context.Context, id uuid.UUID) (*dto.CollectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collection, err := s.find(ctx, uow, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, uow, collection)
}

func (s *collectionService) GetAll(ctx context.Context) ([]*dto.CollectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collections, err := uow.CollectionRepository().FindAll(ctx, specification.OrderBy{Field: "name"})
	if err != nil {
		return nil, err
	}
	result := make([]*dto.CollectionResponse, 0, len(collections))
	for _, c := range collections {
		res, err := s.toResponse(ctx, uow, c)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, nil
}

// Update applies new settings. Changing the store or the embedding model
// invalidates the existing vectors: the old store collection is dropped and
// ready members go back to chunked.
func (s *collectionService) Update(ctx context.Context, req *dto.UpdateCollectionRequest) (*dto.CollectionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collection, err := s.find(ctx, uow, req.Id)
	if err != nil {
		return nil, err
	}

	before := *collection
	collection.Name = req.Name
	collection.Description = req.Description
	if req.Active != nil {
		collection.Active = *req.Active
	}
	collection.EmbeddingModelId = req.EmbeddingModelId
	collection.StoreId = req.StoreId
	collection.DefaultChunker = orDefault(req.DefaultChunker, collection.DefaultChunker)
	collection.DefaultParser = orDefault(req.DefaultParser, collection.DefaultParser)
	collection.DefaultChunkSize = orDefaultInt(req.DefaultChunkSize, collection.DefaultChunkSize)
	collection.DefaultChunkOverlap = orDefaultInt(req.DefaultChunkOverlap, collection.DefaultChunkOverlap)

	if err := s.validateRefs(ctx, uow, collection); err != nil {
		return nil, err
	}

	storeChanged := !sameID(before.StoreId, collection.StoreId)
	modelChanged := !sameID(before.EmbeddingModelId, collection.EmbeddingModelId)
	if (storeChanged || modelChanged) && before.StoreId != nil {
		s.dropStoreCollection(ctx, *before.StoreId, collection.Id)
	}

	if err := uow.CollectionRepository().Update(ctx, collection); err != nil {
		return nil, err
	}
	if storeChanged || modelChanged {
		if _, err := s.demoteMembers(ctx, uow, collection.Id); err != nil {
			return nil, err
		}
	}
	return s.toResponse(ctx, uow, collection)
}

func (s *collectionService) Delete(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collection, err := s.find(ctx, uow, id)
	if err != nil {
		return err
	}
	if collection.StoreId != nil {
		s.dropStoreCollection(ctx, *collection.StoreId, collection.Id)
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	memberIDs, err := uow.ResourceRepository().ResourceIDs(ctx, id)
	if err != nil {
		return err
	}
	if err := uow.CollectionRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := s.demoteOrphans(ctx, uow, memberIDs); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.logger.Info("Collection", "Collection deleted", map[string]interface{}{"collection_id": id})
	return nil
}

func (s *collectionService) AddResources(ctx context.Context, id uuid.UUID, resourceIDs []uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.find(ctx, uow, id); err != nil {
		return err
	}
	resources, err := uow.ResourceRepository().FindAll(ctx, specification.ByIDs{IDs: resourceIDs})
	if err != nil {
		return err
	}
	if len(resources) != len(uniqueIDs(resourceIDs)) {
		return fmt.Errorf("%w: some resources do not exist", ErrNotFound)
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	for _, r := range resources {
		if err := uow.ResourceRepository().AddToCollection(ctx, r.Id, id); err != nil {
			return err
		}
		// A ready resource is not embedded in the new collection yet.
		if r.State == entity.ResourceStateReady {
			if err := uow.ResourceRepository().UpdateFields(ctx, r.Id, map[string]interface{}{
				"state": string(entity.ResourceStateChunked),
			}); err != nil {
				return err
			}
		}
	}
	return uow.Commit()
}

func (s *collectionService) RemoveResources(ctx context.Context, id uuid.UUID, resourceIDs []uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collection, err := s.find(ctx, uow, id)
	if err != nil {
		return err
	}

	chunks, err := uow.ChunkRepository().FindAll(ctx, specification.ByResourceIDs{ResourceIDs: resourceIDs})
	if err != nil {
		return err
	}
	if collection.StoreId != nil && len(chunks) > 0 {
		s.DeleteResourceVectors(ctx, []uuid.UUID{collection.Id}, chunkIDs(chunks))
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	for _, rid := range resourceIDs {
		if err := uow.ResourceRepository().RemoveFromCollection(ctx, rid, id); err != nil {
			return err
		}
	}
	if err := s.demoteOrphans(ctx, uow, resourceIDs); err != nil {
		return err
	}
	return uow.Commit()
}

// demoteOrphans moves ready resources that no longer belong to any
// collection back to chunked.
func (s *collectionService) demoteOrphans(ctx context.Context, uow unitofwork.UnitOfWork, resourceIDs []uuid.UUID) error {
	for _, rid := range resourceIDs {
		remaining, err := uow.ResourceRepository().CollectionIDs(ctx, rid)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			continue
		}
		if err := uow.ResourceRepository().UpdateFields(ctx, rid, map[string]interface{}{
			"state": string(entity.ResourceStateChunked),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *collectionService) demoteMembers(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) (int, error) {
	members, err := uow.ResourceRepository().FindAll(ctx,
		specification.InCollection{CollectionID: id},
		specification.ByState{States: []string{string(entity.ResourceStateReady)}},
	)
	if err != nil {
		return 0, err
	}
	for _, r := range members {
		if err := uow.ResourceRepository().UpdateFields(ctx, r.Id, map[string]interface{}{
			"state": string(entity.ResourceStateChunked),
		}); err != nil {
			return 0, err
		}
	}
	return len(members), nil
}

// ApplyDefaults copies the collection's parsing and chunking defaults onto
// its member resources.
func (s *collectionService) ApplyDefaults(ctx context.Context, id uuid.UUID) (int, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collection, err := s.find(ctx, uow, id)
	if err != nil {
		return 0, err
	}
	members, err := uow.ResourceRepository().FindAll(ctx, specification.InCollection{CollectionID: id})
	if err != nil {
		return 0, err
	}
	for _, r := range members {
		if err := uow.ResourceRepository().UpdateFields(ctx, r.Id, map[string]interface{}{
			"parser":               collection.DefaultParser,
			"chunker":              collection.DefaultChunker,
			"target_chunk_size":    collection.DefaultChunkSize,
			"target_chunk_overlap": collection.DefaultChunkOverlap,
		}); err != nil {
			return 0, err
		}
	}
	return len(members), nil
}

func (s *collectionService) EmbedResources(ctx context.Context, id uuid.UUID, resourceIDs []uuid.UUID) (report *dto.EmbedReport, err error) {
	ctx, span := tracer.Tracer("collection").Start(ctx, "collection.embed_resources")
	span.SetAttributes(attribute.String("collection.id", id.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if report != nil {
			span.SetAttributes(
				attribute.Int("embed.processed_chunks", report.ProcessedChunks),
				attribute.Int("embed.failures", len(report.Failures)),
			)
		}
		span.End()
	}()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	collection, err := s.find(ctx, uow, id)
	if err != nil {
		return nil, err
	}
	if collection.EmbeddingModelId == nil {
		return nil, fmt.Errorf("%w: collection %s has no embedding model", ErrConfiguration, collection.Name)
	}
	if collection.StoreId == nil {
		return nil, fmt.Errorf("%w: collection %s has no vector store", ErrConfiguration, collection.Name)
	}

	embedder, model, err := s.resolver.Embedder(ctx, *collection.EmbeddingModelId)
	if err != nil {
		return nil, err
	}
	store, err := s.resolver.Store(ctx, *collection.StoreId)
	if err != nil {
		return nil, err
	}

	resources, err := s.selectResources(ctx, uow, id, resourceIDs)
	if err != nil {
		return nil, err
	}

	report = &dto.EmbedReport{
		CollectionId:     id,
		Success:          true,
		ReadyResourceIds: []uuid.UUID{},
		Failures:         []dto.EmbedFailure{},
	}
	if len(resources) == 0 {
		return report, nil
	}

	byID := make(map[uuid.UUID]*entity.Resource, len(resources))
	ids := make([]uuid.UUID, 0, len(resources))
	for _, r := range resources {
		byID[r.Id] = r
		ids = append(ids, r.Id)
	}

	chunks, err := uow.ChunkRepository().FindAll(ctx,
		specification.ByResourceIDs{ResourceIDs: ids},
		specification.OrderBy{Field: "resource_id"},
		specification.OrderBy{Field: "sequence"},
	)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return report, nil
	}

	name := s.storeName(id)
	if err := s.ensureStoreCollection(ctx, store, name, embedder, model, collection); err != nil {
		return nil, err
	}

	total := make(map[uuid.UUID]int)
	succeeded := make(map[uuid.UUID]int)
	for _, c := range chunks {
		total[c.ResourceId]++
	}

	batchSize := s.cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	for start, batchNo := 0, 1; start < len(chunks); start, batchNo = start+batchSize, batchNo+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := s.embedBatch(ctx, store, name, embedder, batch, byID); err != nil {
			s.logger.Warn("Collection", "Embedding batch failed", map[string]interface{}{
				"collection_id": id,
				"batch":         batchNo,
				"error":         err.Error(),
			})
			report.Failures = append(report.Failures, dto.EmbedFailure{
				ResourceIds: batchResourceIDs(batch),
				Batch:       batchNo,
				Error:       err.Error(),
			})
			continue
		}
		report.ProcessedChunks += len(batch)
		for _, c := range batch {
			succeeded[c.ResourceId]++
		}
	}

	for _, rid := range ids {
		if total[rid] == 0 || succeeded[rid] != total[rid] {
			continue
		}
		if err := uow.ResourceRepository().UpdateFields(ctx, rid, map[string]interface{}{
			"state":      string(entity.ResourceStateReady),
			"last_error": "",
		}); err != nil {
			return nil, err
		}
		report.ReadyResourceIds = append(report.ReadyResourceIds, rid)
	}
	report.ProcessedResources = len(report.ReadyResourceIds)
	report.Success = len(report.Failures) == 0

	if err := s.publisher.Publish(ctx, events.NewEvent(events.TypeCollectionEmbedded, map[string]interface{}{
		"collection_id":       id.String(),
		"processed_chunks":    report.ProcessedChunks,
		"processed_resources": report.ProcessedResources,
		"failures":            len(report.Failures),
	})); err != nil {
		s.logger.Warn("Collection", "Failed to publish embed event", map[string]interface{}{"error": err.Error()})
	}

	s.logger.Info("Collection", "Embedding finished", map[string]interface{}{
		"collection_id":       id,
		"processed_chunks":    report.ProcessedChunks,
		"processed_resources": report.ProcessedResources,
		"failures":            len(report.Failures),
	})
	return report, nil
}

func (s *collectionService) selectResources(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID, resourceIDs []uuid.UUID) ([]*entity.Resource, error) {
	specs := []specification.Specification{specification.InCollection{CollectionID: id}}
	if len(resourceIDs) > 0 {
		specs = append(specs, specification.ByIDs{IDs: resourceIDs})
	} else {
		specs = append(specs, specification.ByState{States: []string{string(entity.ResourceStateChunked)}})
	}
	return uow.ResourceRepository().FindAll(ctx, specs...)
}

func (s *collectionService) ensureStoreCollection(ctx context.Context, store vectorstore.Store, name string, embedder embedding.Embedder, model *entity.Model, collection *entity.Collection) error {
	exists, err := store.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	dimension := model.Dimensions
	if dimension <= 0 {
		probe, err := embedding.EmbedOne(ctx, embedder, dimensionProbeText)
		if err != nil {
			return fmt.Errorf("probe embedding dimension: %w", err)
		}
		dimension = len(probe)
	}
	return store.CreateCollection(ctx, name, dimension, map[string]any{
		"collection_id":   collection.Id.String(),
		"collection_name": collection.Name,
		"embedding_model": model.Name,
	})
}

func (s *collectionService) embedBatch(ctx context.Context, store vectorstore.Store, name string, embedder embedding.Embedder, batch []*entity.Chunk, resources map[uuid.UUID]*entity.Resource) error {
	texts := make([]string, len(batch))
	ids := make([]string, len(batch))
	metadata := make([]map[string]any, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
		ids[i] = c.Id.String()
		meta := map[string]any{}
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["resource_id"] = c.ResourceId.String()
		meta["chunk_id"] = c.Id.String()
		meta["sequence"] = c.Sequence
		if r, ok := resources[c.ResourceId]; ok {
			meta["resource_name"] = r.Name
		}
		metadata[i] = meta
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
	}
	_, err = store.InsertVectors(ctx, name, vectors, metadata, ids)
	return err
}

func (s *collectionService) Reindex(ctx context.Context, id uuid.UUID) (*dto.EmbedReport, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collection, err := s.find(ctx, uow, id)
	if err != nil {
		return nil, err
	}
	if collection.StoreId == nil {
		return nil, fmt.Errorf("%w: collection %s has no vector store", ErrConfiguration, collection.Name)
	}

	store, err := s.resolver.Store(ctx, *collection.StoreId)
	if err != nil {
		return nil, err
	}
	if err := store.DeleteCollection(ctx, s.storeName(id)); err != nil && !vectorstore.IsCode(err, vectorstore.OperationErrorCollectionNotFound) {
		return nil, err
	}
	demoted, err := s.demoteMembers(ctx, uow, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Collection", "Reindexing collection", map[string]interface{}{
		"collection_id": id,
		"demoted":       demoted,
	})
	return s.EmbedResources(ctx, id, nil)
}

func (s *collectionService) DeleteResourceVectors(ctx context.Context, collectionIDs []uuid.UUID, chunkIDs []uuid.UUID) {
	if len(chunkIDs) == 0 || len(collectionIDs) == 0 {
		return
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	collections, err := uow.CollectionRepository().FindAll(ctx, specification.ByIDs{IDs: collectionIDs})
	if err != nil {
		s.logger.Warn("Collection", "Failed to load collections for vector cleanup", map[string]interface{}{"error": err.Error()})
		return
	}

	ids := make([]string, len(chunkIDs))
	for i, cid := range chunkIDs {
		ids[i] = cid.String()
	}
	for _, c := range collections {
		if c.StoreId == nil {
			continue
		}
		store, err := s.resolver.Store(ctx, *c.StoreId)
		if err == nil {
			err = store.DeleteVectors(ctx, s.storeName(c.Id), ids)
		}
		if err != nil && !vectorstore.IsCode(err, vectorstore.OperationErrorCollectionNotFound) {
			s.logger.Warn("Collection", "Failed to delete vectors", map[string]interface{}{
				"collection_id": c.Id,
				"chunks":        len(ids),
				"error":         err.Error(),
			})
		}
	}
}

func (s *collectionService) dropStoreCollection(ctx context.Context, storeID, collectionID uuid.UUID) {
	store, err := s.resolver.Store(ctx, storeID)
	if err == nil {
		err = store.DeleteCollection(ctx, s.storeName(collectionID))
	}
	if err != nil && !vectorstore.IsCode(err, vectorstore.OperationErrorCollectionNotFound) && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("Collection", "Failed to drop store collection", map[string]interface{}{
			"collection_id": collectionID,
			"store_id":      storeID,
			"error":         err.Error(),
		})
	}
}

func (s *collectionService) toResponse(ctx context.Context, uow unitofwork.UnitOfWork, c *entity.Collection) (*dto.CollectionResponse, error) {
	members, err := uow.ResourceRepository().FindAll(ctx, specification.InCollection{CollectionID: c.Id})
	if err != nil {
		return nil, err
	}
	states := make(map[string]int)
	for _, r := range members {
		states[string(r.State)]++
	}
	return &dto.CollectionResponse{
		Id:                  c.Id,
		Name:                c.Name,
		Description:         c.Description,
		Active:              c.Active,
		EmbeddingModelId:    c.EmbeddingModelId,
		StoreId:             c.StoreId,
		StoreCollection:     s.storeName(c.Id),
		DefaultChunker:      c.DefaultChunker,
		DefaultParser:       c.DefaultParser,
		DefaultChunkSize:    c.DefaultChunkSize,
		DefaultChunkOverlap: c.DefaultChunkOverlap,
		ResourceCount:       len(members),
		ResourceStates:      states,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}, nil
}

func batchResourceIDs(batch []*entity.Chunk) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	out := make([]uuid.UUID, 0)
	for _, c := range batch {
		if _, ok := seen[c.ResourceId]; ok {
			continue
		}
		seen[c.ResourceId] = struct{}{}
		out = append(out, c.ResourceId)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func chunkIDs(chunks []*entity.Chunk) []uuid.UUID {
	out := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		out[i] = c.Id
	}
	return out
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orDefaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func utcNow() time.Time {
	return time.Now().UTC()
}
