package tools

import (
	"context"
	"errors"
	"testing"

	"llm-knowledge-be/internal/dto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	resp *dto.SearchResponse
	err  error
	last *dto.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	f.last = req
	return f.resp, f.err
}

type fakeCollections struct {
	collection *dto.CollectionResponse
	err        error
}

func (f *fakeCollections) Show(_ context.Context, _ uuid.UUID) (*dto.CollectionResponse, error) {
	return f.collection, f.err
}

func TestKnowledgeRetriever_Execute(t *testing.T) {
	collectionID := uuid.New()
	docA, docB, docC := uuid.New(), uuid.New(), uuid.New()

	hits := []dto.SearchResult{
		{ChunkId: uuid.New(), ResourceId: docA, ResourceName: "a", Score: 0.70, Content: "a1"},
		{ChunkId: uuid.New(), ResourceId: docB, ResourceName: "b", Score: 0.95, Content: "b1"},
		{ChunkId: uuid.New(), ResourceId: docA, ResourceName: "a", Score: 0.90, Content: "a2"},
		{ChunkId: uuid.New(), ResourceId: docC, ResourceName: "c", Score: 0.60, Content: "c1"},
		{ChunkId: uuid.New(), ResourceId: docB, ResourceName: "b", Score: 0.55, Content: "b2"},
		{ChunkId: uuid.New(), ResourceId: docA, ResourceName: "a", Score: 0.65, Content: "a3"},
	}

	search := &fakeSearcher{resp: &dto.SearchResponse{Results: hits, Total: len(hits)}}
	collections := &fakeCollections{collection: &dto.CollectionResponse{Id: collectionID, Name: "docs"}}
	retriever := NewKnowledgeRetriever(search, collections)

	out, err := retriever.Execute(context.Background(), map[string]any{
		"query":             "how",
		"collection_id":     collectionID.String(),
		"top_k":             float64(2),
		"top_n":             float64(2),
		"similarity_cutoff": 0.4,
	})
	require.NoError(t, err)

	require.NotNil(t, search.last)
	assert.Equal(t, 8, search.last.Limit)
	assert.Equal(t, collectionID, *search.last.CollectionId)
	assert.InDelta(t, 0.4, *search.last.MinSimilarity, 1e-9)

	result := out.(*RetrievalResult)
	assert.Equal(t, "docs", result.Collection)
	require.Len(t, result.Results, 4)

	var contents []string
	for _, r := range result.Results {
		contents = append(contents, r.Content)
	}
	assert.Equal(t, []string{"b1", "b2", "a2", "a1"}, contents)
	assert.Equal(t, "95%", result.Results[0].SimilarityPercentage)
	assert.Equal(t, 4, result.TotalChunks)
}

func TestKnowledgeRetriever_Defaults(t *testing.T) {
	collectionID := uuid.New()
	search := &fakeSearcher{resp: &dto.SearchResponse{}}
	retriever := NewKnowledgeRetriever(search, &fakeCollections{collection: &dto.CollectionResponse{Id: collectionID}})

	_, err := retriever.Execute(context.Background(), map[string]any{
		"query":         "q",
		"collection_id": collectionID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, defaultTopN*defaultTopK*2, search.last.Limit)
	assert.InDelta(t, defaultSimilarityCutoff, *search.last.MinSimilarity, 1e-9)
}

func TestKnowledgeRetriever_InvalidArguments(t *testing.T) {
	search := &fakeSearcher{resp: &dto.SearchResponse{}}
	notFound := errors.New("collection not found")

	tests := []struct {
		name        string
		args        map[string]any
		collections *fakeCollections
	}{
		{"missing query", map[string]any{"collection_id": uuid.NewString()}, &fakeCollections{}},
		{"bad collection id", map[string]any{"query": "q", "collection_id": "seven"}, &fakeCollections{}},
		{"unknown collection", map[string]any{"query": "q", "collection_id": uuid.NewString()}, &fakeCollections{err: notFound}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search.last = nil
			_, err := NewKnowledgeRetriever(search, tt.collections).Execute(context.Background(), tt.args)
			assert.Error(t, err)
			assert.Nil(t, search.last)
		})
	}
}
