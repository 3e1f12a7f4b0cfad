package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/repository/specification"
	"llm-knowledge-be/internal/repository/unitofwork"
	"llm-knowledge-be/internal/tracer"
	"llm-knowledge-be/pkg/embedding"
	"llm-knowledge-be/pkg/vectorstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type ISearchService interface {
	// Search runs one similarity query across every eligible collection and
	// merges the results. Collections that fail are reported, not fatal.
	Search(ctx context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error)
}

type searchService struct {
	uowFactory unitofwork.RepositoryFactory
	resolver   IProviderResolver
	cfg        config.KnowledgeConfig
	logger     logger.ILogger
}

func NewSearchService(
	uowFactory unitofwork.RepositoryFactory,
	resolver IProviderResolver,
	cfg config.KnowledgeConfig,
	log logger.ILogger,
) ISearchService {
	return &searchService{
		uowFactory: uowFactory,
		resolver:   resolver,
		cfg:        cfg,
		logger:     log,
	}
}

type hit struct {
	chunkID      uuid.UUID
	collectionID uuid.UUID
	score        float64
	metadata     map[string]any
}

type skipList struct {
	mu    sync.Mutex
	items []dto.SkippedCollection
}

func (l *skipList) add(id uuid.UUID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if it.CollectionId == id {
			return
		}
	}
	l.items = append(l.items, dto.SkippedCollection{CollectionId: id, Reason: reason})
}

// maxRefills bounds the extra store queries made to replace hits of deleted
// chunks.
const maxRefills = 2

func (s *searchService) Search(ctx context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	ctx, span := tracer.Tracer("search").Start(ctx, "search.aggregate")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" && len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: query or vector is required", ErrValidation)
	}
	if len(req.Vector) > 0 && req.CollectionId == nil {
		return nil, fmt.Errorf("%w: a precomputed vector needs exactly one collection_id", ErrValidation)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultSearchLimit
	}
	if limit <= 0 {
		limit = 10
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	minSimilarity := s.cfg.DefaultMinSimilarity
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	collections, err := s.resolveCollections(ctx, uow, req, query != "" && len(req.Vector) == 0)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.collections", len(collections)))

	skipped := &skipList{}
	vectors := map[uuid.UUID][]float32{}
	if len(req.Vector) > 0 {
		vectors[collections[0].Id] = req.Vector
	} else {
		vectors = s.embedQuery(ctx, query, collections, skipped)
	}

	// Hits of deleted chunks are dropped before paging, and the stores are
	// asked for more to fill the page again.
	want := offset + limit
	fetch := want
	var hydrated []dto.SearchResult
	for refill := 0; ; refill++ {
		hits := s.searchCollections(ctx, collections, vectors, vectorstore.Query{
			Limit:         fetch,
			MinSimilarity: minSimilarity,
			Filter:        req.Filter,
		}, skipped)
		merged := mergeHits(hits)
		hydrated, err = s.hydrate(ctx, uow, merged)
		if err != nil {
			return nil, err
		}
		dropped := len(merged) - len(hydrated)
		if dropped == 0 || len(hydrated) >= want || refill == maxRefills {
			break
		}
		fetch += dropped
	}
	total := len(hydrated)
	results := paginate(hydrated, offset, limit)

	span.SetAttributes(
		attribute.Int("search.total", total),
		attribute.Int("search.skipped", len(skipped.items)),
	)
	s.logger.Debug("Search", "Search finished", map[string]interface{}{
		"collections": len(collections),
		"total":       total,
		"returned":    len(results),
		"skipped":     len(skipped.items),
	})

	return &dto.SearchResponse{
		Results:            results,
		Total:              total,
		SkippedCollections: skipped.items,
	}, nil
}

func (s *searchService) resolveCollections(ctx context.Context, uow unitofwork.UnitOfWork, req *dto.SearchRequest, needModel bool) ([]*entity.Collection, error) {
	if req.CollectionId != nil {
		c, err := uow.CollectionRepository().FindOne(ctx, specification.ByID{ID: *req.CollectionId})
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("%w: collection %s", ErrNotFound, *req.CollectionId)
		}
		if c.StoreId == nil {
			return nil, fmt.Errorf("%w: collection %s has no vector store", ErrConfiguration, c.Name)
		}
		if needModel && c.EmbeddingModelId == nil {
			return nil, fmt.Errorf("%w: collection %s has no embedding model", ErrConfiguration, c.Name)
		}
		return []*entity.Collection{c}, nil
	}

	all, err := uow.CollectionRepository().FindAll(ctx, specification.ActiveOnly{}, specification.OrderBy{Field: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Collection, 0, len(all))
	for _, c := range all {
		if c.StoreId == nil || c.EmbeddingModelId == nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// embedQuery embeds the query once per distinct embedding model. A model that
// fails only removes its own collections from the search.
func (s *searchService) embedQuery(ctx context.Context, query string, collections []*entity.Collection, skipped *skipList) map[uuid.UUID][]float32 {
	byModel := map[uuid.UUID][]*entity.Collection{}
	for _, c := range collections {
		byModel[*c.EmbeddingModelId] = append(byModel[*c.EmbeddingModelId], c)
	}

	var mu sync.Mutex
	vectors := make(map[uuid.UUID][]float32, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for modelID, members := range byModel {
		modelID, members := modelID, members
		g.Go(func() error {
			vec, err := s.embedWith(gctx, modelID, query)
			if err != nil {
				s.logger.Warn("Search", "Query embedding failed", map[string]interface{}{
					"model_id": modelID,
					"error":    err.Error(),
				})
				for _, c := range members {
					skipped.add(c.Id, "embedding failed: "+err.Error())
				}
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, c := range members {
				vectors[c.Id] = vec
			}
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}

func (s *searchService) embedWith(ctx context.Context, modelID uuid.UUID, query string) ([]float32, error) {
	embedder, _, err := s.resolver.Embedder(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return embedding.EmbedOne(ctx, embedder, query)
}

func (s *searchService) searchCollections(ctx context.Context, collections []*entity.Collection, vectors map[uuid.UUID][]float32, base vectorstore.Query, skipped *skipList) []hit {
	var (
		mu   sync.Mutex
		hits []hit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, c := range collections {
		c := c
		vec, ok := vectors[c.Id]
		if !ok {
			continue
		}
		g.Go(func() error {
			store, err := s.resolver.Store(gctx, *c.StoreId)
			if err != nil {
				skipped.add(c.Id, "store unavailable: "+err.Error())
				return nil
			}
			q := base
			q.Vector = vec
			results, err := store.SearchVectors(gctx, StoreCollectionName(s.cfg.CollectionPrefix, c.Id), q)
			if err != nil {
				s.logger.Warn("Search", "Collection search failed", map[string]interface{}{
					"collection_id": c.Id,
					"error":         err.Error(),
				})
				skipped.add(c.Id, "search failed: "+err.Error())
				return nil
			}

			local := make([]hit, 0, len(results))
			for _, r := range results {
				id, err := uuid.Parse(r.ID)
				if err != nil {
					continue
				}
				local = append(local, hit{chunkID: id, collectionID: c.Id, score: r.Score, metadata: r.Metadata})
			}
			mu.Lock()
			hits = append(hits, local...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return hits
}

func (s *searchService) concurrency() int {
	if s.cfg.SearchConcurrency > 0 {
		return s.cfg.SearchConcurrency
	}
	return 4
}

// mergeHits orders by score then chunk id, both descending, and keeps the
// best scoring hit of every chunk.
func mergeHits(hits []hit) []hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].chunkID.String() > hits[j].chunkID.String()
	})
	seen := make(map[uuid.UUID]struct{}, len(hits))
	out := make([]hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.chunkID]; ok {
			continue
		}
		seen[h.chunkID] = struct{}{}
		out = append(out, h)
	}
	return out
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// hydrate loads the chunks behind the hits. Hits whose chunk is gone are
// dropped.
func (s *searchService) hydrate(ctx context.Context, uow unitofwork.UnitOfWork, hits []hit) ([]dto.SearchResult, error) {
	results := make([]dto.SearchResult, 0, len(hits))
	if len(hits) == 0 {
		return results, nil
	}

	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.chunkID
	}
	chunks, err := uow.ChunkRepository().FindAll(ctx, specification.ByIDs{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*entity.Chunk, len(chunks))
	resourceIDs := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		byID[c.Id] = c
		resourceIDs = append(resourceIDs, c.ResourceId)
	}

	names := map[uuid.UUID]string{}
	if len(resourceIDs) > 0 {
		resources, err := uow.ResourceRepository().FindAll(ctx, specification.ByIDs{IDs: uniqueIDs(resourceIDs)})
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			names[r.Id] = r.Name
		}
	}

	for _, h := range hits {
		c, ok := byID[h.chunkID]
		if !ok {
			continue
		}
		results = append(results, dto.SearchResult{
			ChunkId:      c.Id,
			ResourceId:   c.ResourceId,
			ResourceName: names[c.ResourceId],
			CollectionId: h.collectionID,
			Sequence:     c.Sequence,
			Content:      c.Content,
			Metadata:     c.Metadata,
			Score:        h.score,
		})
	}
	return results, nil
}
