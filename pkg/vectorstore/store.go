// Package vectorstore defines the adapter contract shared by every vector
// backend and the implementations for pgvector, Qdrant, Chroma and memory.
package vectorstore

import (
	"context"
	"regexp"
	"strings"
)

// Query describes a similarity search against one store collection.
type Query struct {
	Vector        []float32
	Limit         int
	Offset        int
	MinSimilarity float64
	Filter        map[string]any
}

// Result is one match. Score is normalized to [0,1], higher is closer.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Store is implemented by each backend. Inserts have upsert semantics and
// searching a missing collection yields no results.
type Store interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]any) error
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	InsertVectors(ctx context.Context, name string, vectors [][]float32, metadata []map[string]any, ids []string) ([]string, error)
	DeleteVectors(ctx context.Context, name string, ids []string) error
	SearchVectors(ctx context.Context, name string, query Query) ([]Result, error)
}

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9._-]`)
	repeatedDots     = regexp.MustCompile(`\.{2,}`)
)

// SanitizeCollectionName turns an arbitrary string into a name accepted by
// every backend: [a-z0-9._-], 3 to 63 characters, alphanumeric at both ends.
func SanitizeCollectionName(raw string) string {
	name := strings.ToLower(raw)
	name = invalidNameChars.ReplaceAllString(name, "-")
	name = repeatedDots.ReplaceAllString(name, ".")
	if len(name) > 63 {
		name = name[:63]
	}
	name = strings.TrimFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for len(name) < 3 {
		name += "a"
	}
	return name
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func validateInsert(op string, vectors [][]float32, metadata []map[string]any, ids []string) error {
	if len(ids) != len(vectors) {
		return opErr(op, OperationErrorValidation, "ids and vectors length mismatch", nil)
	}
	if metadata != nil && len(metadata) != len(vectors) {
		return opErr(op, OperationErrorValidation, "metadata and vectors length mismatch", nil)
	}
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return opErr(op, OperationErrorValidation, "empty vector id", nil)
		}
		if len(vectors[i]) == 0 {
			return opErr(op, OperationErrorValidation, "empty vector for id "+id, nil)
		}
	}
	return nil
}

func metadataAt(metadata []map[string]any, i int) map[string]any {
	if i < len(metadata) && metadata[i] != nil {
		return metadata[i]
	}
	return map[string]any{}
}
