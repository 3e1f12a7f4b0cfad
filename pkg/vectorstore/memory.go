package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memoryPoint struct {
	vector   []float32
	metadata map[string]any
}

type memoryCollection struct {
	dimension int
	metadata  map[string]any
	points    map[string]memoryPoint
}

// MemoryStore is an in-process exact cosine store, used for tests and
// single-node deployments without an external backend.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(_ context.Context, name string, dimension int, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = &memoryCollection{
		dimension: dimension,
		metadata:  metadata,
		points:    make(map[string]memoryPoint),
	}
	return nil
}

func (s *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) InsertVectors(_ context.Context, name string, vectors [][]float32, metadata []map[string]any, ids []string) ([]string, error) {
	if err := validateInsert("insert_vectors", vectors, metadata, ids); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, opErr("insert_vectors", OperationErrorCollectionNotFound, "collection "+name+" does not exist", nil)
	}
	for i, id := range ids {
		if col.dimension > 0 && len(vectors[i]) != col.dimension {
			return nil, opErr("insert_vectors", OperationErrorValidation, "vector dimension mismatch for id "+id, nil)
		}
		col.points[id] = memoryPoint{vector: vectors[i], metadata: metadataAt(metadata, i)}
	}
	return ids, nil
}

func (s *MemoryStore) DeleteVectors(_ context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

func (s *MemoryStore) SearchVectors(_ context.Context, name string, query Query) ([]Result, error) {
	cond, err := ParseFilter(query.Filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return []Result{}, nil
	}

	results := make([]Result, 0, len(col.points))
	for id, p := range col.points {
		if !cond.Match(p.metadata) {
			continue
		}
		score := clampScore(cosine(query.Vector, p.vector))
		if score < query.MinSimilarity {
			continue
		}
		results = append(results, Result{ID: id, Score: score, Metadata: p.metadata})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID > results[j].ID
	})

	if query.Offset > 0 {
		if query.Offset >= len(results) {
			return []Result{}, nil
		}
		results = results[query.Offset:]
	}
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
