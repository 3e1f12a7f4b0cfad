package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ChromaConfig configures the Chroma HTTP adapter.
type ChromaConfig struct {
	BaseURL    string
	APIKey     string
	Tenant     string
	Database   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ChromaStore talks to the Chroma v1 REST API. Chroma ranks by L2 distance,
// which is mapped to a similarity with 1/(1+d).
type ChromaStore struct {
	baseURL  string
	apiKey   string
	tenant   string
	database string
	http     *http.Client
}

var _ Store = (*ChromaStore)(nil)

var errChromaMissing = errors.New("chroma collection does not exist")

func NewChromaStore(cfg ChromaConfig) (*ChromaStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, opErr("new_store", OperationErrorValidation, "chroma base url is required", nil)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, opErr("new_store", OperationErrorValidation, "invalid chroma base url", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ChromaStore{
		baseURL:  base,
		apiKey:   cfg.APIKey,
		tenant:   cfg.Tenant,
		database: cfg.Database,
		http:     client,
	}, nil
}

type chromaCollection struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float64        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

func (s *ChromaStore) getCollection(ctx context.Context, name string) (*chromaCollection, error) {
	var col chromaCollection
	err := s.doJSON(ctx, "get_collection", http.MethodGet, "/api/v1/collections/"+url.PathEscape(name), nil, &col)
	if err != nil {
		if isChromaMissing(err) {
			return nil, errChromaMissing
		}
		return nil, err
	}
	return &col, nil
}

func (s *ChromaStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.getCollection(ctx, name)
	if errors.Is(err, errChromaMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *ChromaStore) CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]any) error {
	meta := chromaMetadata(metadata)
	meta["hnsw:space"] = "l2"
	if dimension > 0 {
		meta["dimension"] = dimension
	}
	body := map[string]any{
		"name":          name,
		"metadata":      meta,
		"get_or_create": true,
	}
	return s.doJSON(ctx, "create_collection", http.MethodPost, "/api/v1/collections", body, nil)
}

func (s *ChromaStore) DeleteCollection(ctx context.Context, name string) error {
	err := s.doJSON(ctx, "delete_collection", http.MethodDelete, "/api/v1/collections/"+url.PathEscape(name), nil, nil)
	if isChromaMissing(err) {
		return nil
	}
	return err
}

func (s *ChromaStore) ListCollections(ctx context.Context) ([]string, error) {
	var cols []chromaCollection
	if err := s.doJSON(ctx, "list_collections", http.MethodGet, "/api/v1/collections", nil, &cols); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *ChromaStore) InsertVectors(ctx context.Context, name string, vectors [][]float32, metadata []map[string]any, ids []string) ([]string, error) {
	if err := validateInsert("insert_vectors", vectors, metadata, ids); err != nil {
		return nil, err
	}
	col, err := s.getCollection(ctx, name)
	if errors.Is(err, errChromaMissing) {
		return nil, opErr("insert_vectors", OperationErrorCollectionNotFound, "collection "+name+" does not exist", nil)
	}
	if err != nil {
		return nil, err
	}

	metas := make([]map[string]any, len(ids))
	for i := range ids {
		metas[i] = chromaMetadata(metadataAt(metadata, i))
	}
	body := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"metadatas":  metas,
	}
	if err := s.doJSON(ctx, "insert_vectors", http.MethodPost, "/api/v1/collections/"+col.ID+"/upsert", body, nil); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *ChromaStore) DeleteVectors(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.getCollection(ctx, name)
	if errors.Is(err, errChromaMissing) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.doJSON(ctx, "delete_vectors", http.MethodPost, "/api/v1/collections/"+col.ID+"/delete", map[string]any{"ids": ids}, nil)
}

func (s *ChromaStore) SearchVectors(ctx context.Context, name string, query Query) ([]Result, error) {
	cond, err := ParseFilter(query.Filter)
	if err != nil {
		return nil, err
	}
	var where map[string]any
	if cond != nil {
		if where, err = chromaWhere(*cond); err != nil {
			return nil, err
		}
	}

	col, err := s.getCollection(ctx, name)
	if errors.Is(err, errChromaMissing) {
		return []Result{}, nil
	}
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}
	// Chroma has no offset, so over-fetch and drop the head.
	body := map[string]any{
		"query_embeddings": [][]float32{query.Vector},
		"n_results":        limit + query.Offset,
		"include":          []string{"metadatas", "distances"},
	}
	if where != nil {
		body["where"] = where
	}

	var resp chromaQueryResponse
	if err := s.doJSON(ctx, "search_vectors", http.MethodPost, "/api/v1/collections/"+col.ID+"/query", body, &resp); err != nil {
		return nil, err
	}

	results := []Result{}
	if len(resp.IDs) == 0 {
		return results, nil
	}
	for i, id := range resp.IDs[0] {
		if i < query.Offset {
			continue
		}
		score := 0.0
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			score = 1.0 / (1.0 + resp.Distances[0][i])
		}
		score = clampScore(score)
		if score < query.MinSimilarity {
			continue
		}
		var meta map[string]any
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			meta = resp.Metadatas[0][i]
		}
		results = append(results, Result{ID: id, Score: score, Metadata: meta})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (s *ChromaStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	endpoint := s.baseURL + path
	if s.tenant != "" || s.database != "" {
		q := url.Values{}
		if s.tenant != "" {
			q.Set("tenant", s.tenant)
		}
		if s.database != "" {
			q.Set("database", s.database)
		}
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "chroma request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("chroma http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode chroma response failed", err)
	}
	return nil
}

// Older Chroma servers report a missing collection as a 500 with a message.
func isChromaMissing(err error) bool {
	var oe *OperationError
	if !errors.As(err, &oe) {
		return false
	}
	if oe.StatusCode == http.StatusNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(oe.Message), "does not exist")
}

// chromaMetadata drops nil values and stringifies anything that is not a
// string, number or bool.
func chromaMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v.(type) {
		case nil:
			continue
		case string, bool:
			out[k] = v
		default:
			if f, ok := toFloat(v); ok {
				out[k] = f
				continue
			}
			if raw, err := json.Marshal(v); err == nil {
				out[k] = string(raw)
			} else {
				out[k] = fmt.Sprint(v)
			}
		}
	}
	return out
}

func chromaWhere(c Condition) (map[string]any, error) {
	switch c.Op {
	case FilterAnd, FilterOr:
		items := make([]any, 0, len(c.Children))
		for _, child := range c.Children {
			sub, err := chromaWhere(child)
			if err != nil {
				return nil, err
			}
			items = append(items, sub)
		}
		if len(items) == 1 {
			return items[0].(map[string]any), nil
		}
		return map[string]any{c.Op: items}, nil
	case FilterNot:
		return nil, opErr("filter_translate", OperationErrorUnsupportedFilter, "chroma does not support $not", nil)
	default:
		return map[string]any{c.Field: map[string]any{c.Op: c.Value}}, nil
	}
}
