package vectorstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeCollectionName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already valid", in: "llm_42", want: "llm_42"},
		{name: "uppercase and spaces", in: "My Collection", want: "my-collection"},
		{name: "collapses dots", in: "a...b", want: "a.b"},
		{name: "trims non alphanumeric ends", in: "__docs--", want: "docs"},
		{name: "pads short names", in: "x", want: "xaa"},
		{name: "empty", in: "", want: "aaa"},
		{name: "truncates to 63", in: strings.Repeat("a", 80), want: strings.Repeat("a", 63)},
		{name: "uuid suffix", in: "llm_0F8FAD5B-D9CB-469F-A165-70867728950E", want: "llm_0f8fad5b-d9cb-469f-a165-70867728950e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeCollectionName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, len(got), 3)
			assert.LessOrEqual(t, len(got), 63)
		})
	}
}

func TestParseFilter(t *testing.T) {
	t.Run("empty filter matches everything", func(t *testing.T) {
		cond, err := ParseFilter(nil)
		require.NoError(t, err)
		assert.Nil(t, cond)
		assert.True(t, cond.Match(map[string]any{"a": 1}))
	})

	t.Run("unsupported operator", func(t *testing.T) {
		_, err := ParseFilter(map[string]any{"size": map[string]any{"$regex": "x"}})
		require.Error(t, err)
		assert.True(t, IsCode(err, OperationErrorUnsupportedFilter))
	})

	t.Run("range needs a number", func(t *testing.T) {
		_, err := ParseFilter(map[string]any{"size": map[string]any{"$gt": "big"}})
		require.Error(t, err)
		assert.True(t, IsCode(err, OperationErrorValidation))
	})
}

func TestConditionMatch(t *testing.T) {
	meta := map[string]any{"resource_id": "r1", "sequence": float64(3), "lang": "en"}

	tests := []struct {
		name   string
		filter map[string]any
		want   bool
	}{
		{name: "bare value is eq", filter: map[string]any{"resource_id": "r1"}, want: true},
		{name: "eq mismatch", filter: map[string]any{"resource_id": "r2"}, want: false},
		{name: "ne", filter: map[string]any{"lang": map[string]any{"$ne": "de"}}, want: true},
		{name: "in", filter: map[string]any{"lang": map[string]any{"$in": []any{"fr", "en"}}}, want: true},
		{name: "nin", filter: map[string]any{"lang": map[string]any{"$nin": []string{"en"}}}, want: false},
		{name: "int compares with float", filter: map[string]any{"sequence": 3}, want: true},
		{name: "range", filter: map[string]any{"sequence": map[string]any{"$gte": 2, "$lt": 4}}, want: true},
		{name: "range outside", filter: map[string]any{"sequence": map[string]any{"$gt": 3}}, want: false},
		{name: "or", filter: map[string]any{"$or": []any{
			map[string]any{"lang": "de"},
			map[string]any{"resource_id": "r1"},
		}}, want: true},
		{name: "not", filter: map[string]any{"$not": map[string]any{"lang": "en"}}, want: false},
		{name: "missing field", filter: map[string]any{"author": "x"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := ParseFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cond.Match(meta))
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.InsertVectors(ctx, "missing", [][]float32{{1, 0}}, nil, []string{"a"})
	require.Error(t, err)
	assert.True(t, IsCode(err, OperationErrorCollectionNotFound))

	res, err := s.SearchVectors(ctx, "missing", Query{Vector: []float32{1, 0}})
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, s.CreateCollection(ctx, "docs", 2, nil))
	exists, err := s.CollectionExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.InsertVectors(ctx, "docs",
		[][]float32{{1, 0}, {0.8, 0.6}, {0, 1}, {-1, 0}},
		[]map[string]any{{"k": "a"}, {"k": "b"}, {"k": "c"}, {"k": "d"}},
		[]string{"a", "b", "c", "d"},
	)
	require.NoError(t, err)

	res, err = s.SearchVectors(ctx, "docs", Query{Vector: []float32{1, 0}, Limit: 10, MinSimilarity: 0.5})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, "b", res[1].ID)
	assert.InDelta(t, 0.8, res[1].Score, 1e-6)

	res, err = s.SearchVectors(ctx, "docs", Query{Vector: []float32{1, 0}, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)

	res, err = s.SearchVectors(ctx, "docs", Query{Vector: []float32{1, 0}, Filter: map[string]any{"k": "c"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 0.0, res[0].Score)

	// upsert replaces in place
	_, err = s.InsertVectors(ctx, "docs", [][]float32{{0, 1}}, nil, []string{"a"})
	require.NoError(t, err)
	res, err = s.SearchVectors(ctx, "docs", Query{Vector: []float32{0, 1}, MinSimilarity: 0.99})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "c", res[0].ID)
	assert.Equal(t, "a", res[1].ID)

	require.NoError(t, s.DeleteVectors(ctx, "docs", []string{"a", "c"}))
	res, err = s.SearchVectors(ctx, "docs", Query{Vector: []float32{0, 1}, MinSimilarity: 0.99})
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, s.DeleteCollection(ctx, "docs"))
	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestValidateInsert(t *testing.T) {
	err := validateInsert("insert_vectors", [][]float32{{1}}, nil, []string{"a", "b"})
	assert.True(t, IsCode(err, OperationErrorValidation))

	err = validateInsert("insert_vectors", [][]float32{{1}}, []map[string]any{{}, {}}, []string{"a"})
	assert.True(t, IsCode(err, OperationErrorValidation))

	assert.NoError(t, validateInsert("insert_vectors", [][]float32{{1}}, nil, []string{"a"}))
}

func TestPgvectorWhere(t *testing.T) {
	cond, err := ParseFilter(map[string]any{
		"resource_id": "r1",
		"sequence":    map[string]any{"$gt": 2},
		"lang":        map[string]any{"$in": []any{"en", "fr"}},
	})
	require.NoError(t, err)

	sql, args := pgvectorWhere(*cond)
	assert.Equal(t, "((metadata @> ?::jsonb OR metadata @> ?::jsonb) AND (metadata @> ?::jsonb) AND ((jsonb_extract_path_text(metadata, ?))::numeric > ?))", sql)
	assert.Equal(t, []any{`{"lang":"en"}`, `{"lang":"fr"}`, `{"resource_id":"r1"}`, "sequence", 2}, args)
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "vector_embeddings_llm_ab_c_1_idx", indexName("llm_ab-c.1"))
	assert.LessOrEqual(t, len(indexName(strings.Repeat("a", 63))), 63)
}
