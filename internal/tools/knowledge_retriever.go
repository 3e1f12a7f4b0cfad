// Package tools holds the tools the server registers for thread models.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/pkg/tool"

	"github.com/google/uuid"
)

const KnowledgeRetrieverName = "knowledge_retriever"

const (
	defaultTopK             = 5
	defaultTopN             = 3
	defaultSimilarityCutoff = 0.5
)

var knowledgeRetrieverSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "The search query text. Be specific and focused."},
    "collection_id": {"type": "string", "description": "ID of the knowledge collection to search."},
    "top_k": {"type": "integer", "description": "Maximum number of chunks per resource.", "default": 5},
    "top_n": {"type": "integer", "description": "Maximum number of distinct resources.", "default": 3},
    "similarity_cutoff": {"type": "number", "description": "Minimum similarity between 0 and 1.", "default": 0.5}
  },
  "required": ["query", "collection_id"]
}`)

type Searcher interface {
	Search(ctx context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error)
}

type CollectionFinder interface {
	Show(ctx context.Context, id uuid.UUID) (*dto.CollectionResponse, error)
}

type RetrievedChunk struct {
	Content              string    `json:"content"`
	ResourceName         string    `json:"resource_name"`
	ResourceId           uuid.UUID `json:"resource_id"`
	ChunkId              uuid.UUID `json:"chunk_id"`
	Sequence             int       `json:"sequence"`
	Similarity           float64   `json:"similarity"`
	SimilarityPercentage string    `json:"similarity_percentage"`
}

type RetrievalResult struct {
	Query        string           `json:"query"`
	Collection   string           `json:"collection"`
	CollectionId uuid.UUID        `json:"collection_id"`
	Results      []RetrievedChunk `json:"results"`
	TotalChunks  int              `json:"total_chunks"`
}

type knowledgeRetriever struct {
	search      Searcher
	collections CollectionFinder
}

// NewKnowledgeRetriever returns the knowledge_retriever tool. It searches one
// collection and keeps the top_k best chunks of the top_n resources, ranking
// resources by their best chunk.
func NewKnowledgeRetriever(search Searcher, collections CollectionFinder) tool.Tool {
	return &knowledgeRetriever{search: search, collections: collections}
}

func (k *knowledgeRetriever) Name() string { return KnowledgeRetrieverName }

func (k *knowledgeRetriever) Description() string {
	return "Retrieve relevant passages from a knowledge collection using semantic search. " +
		"Use it to answer questions that need information from the knowledge base."
}

func (k *knowledgeRetriever) Schema() json.RawMessage { return knowledgeRetrieverSchema }

func (k *knowledgeRetriever) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	rawID, _ := args["collection_id"].(string)
	collectionID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("collection_id must be a collection id: %q", rawID)
	}
	topK := intArg(args, "top_k", defaultTopK)
	topN := intArg(args, "top_n", defaultTopN)
	cutoff := floatArg(args, "similarity_cutoff", defaultSimilarityCutoff)

	collection, err := k.collections.Show(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	resp, err := k.search.Search(ctx, &dto.SearchRequest{
		Query:         query,
		CollectionId:  &collectionID,
		Limit:         topN * topK * 2,
		MinSimilarity: &cutoff,
	})
	if err != nil {
		return nil, err
	}

	results := selectTopResources(resp.Results, topK, topN)
	return &RetrievalResult{
		Query:        query,
		Collection:   collection.Name,
		CollectionId: collection.Id,
		Results:      results,
		TotalChunks:  len(results),
	}, nil
}

// selectTopResources groups hits by resource, keeps the topK best chunks of
// each and returns the chunks of the topN resources with the best single
// chunk.
func selectTopResources(hits []dto.SearchResult, topK, topN int) []RetrievedChunk {
	byResource := map[uuid.UUID][]dto.SearchResult{}
	var order []uuid.UUID
	for _, h := range hits {
		if _, ok := byResource[h.ResourceId]; !ok {
			order = append(order, h.ResourceId)
		}
		byResource[h.ResourceId] = append(byResource[h.ResourceId], h)
	}

	best := make(map[uuid.UUID]float64, len(order))
	for id, group := range byResource {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
		if len(group) > topK {
			group = group[:topK]
		}
		byResource[id] = group
		best[id] = group[0].Score
	}

	sort.SliceStable(order, func(i, j int) bool { return best[order[i]] > best[order[j]] })
	if len(order) > topN {
		order = order[:topN]
	}

	out := make([]RetrievedChunk, 0, len(order)*topK)
	for _, id := range order {
		for _, h := range byResource[id] {
			out = append(out, RetrievedChunk{
				Content:              h.Content,
				ResourceName:         h.ResourceName,
				ResourceId:           h.ResourceId,
				ChunkId:              h.ChunkId,
				Sequence:             h.Sequence,
				Similarity:           math.Round(h.Score*10000) / 10000,
				SimilarityPercentage: fmt.Sprintf("%d%%", int(h.Score*100)),
			})
		}
	}
	return out
}

// JSON numbers decode as float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	}
	return fallback
}

func floatArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		if v >= 0 && v <= 1 {
			return v
		}
	case int:
		if v == 0 || v == 1 {
			return float64(v)
		}
	}
	return fallback
}
