package embedding

import (
	"context"
	"errors"
	"math"
)

// Embedder turns a batch of texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config describes one embedding model endpoint.
type Config struct {
	Service string // "ollama", "openai", "gemini", "jina"
	BaseURL string
	APIKey  string
	Model   string
}

var ErrEmptyEmbedding = errors.New("embedding provider returned no vectors")

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vectors[0], nil
}

// normalizeVector normalizes a vector to unit length (magnitude = 1)
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	// Avoid division by zero
	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}

// NormalizeVector is exported for providers living in sub-packages.
func NormalizeVector(vec []float32) []float32 {
	return normalizeVector(vec)
}
