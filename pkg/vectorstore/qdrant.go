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

const (
	maxErrorBodyBytes = 4096
	maxResponseBytes  = 16 << 20
)

// QdrantConfig configures the Qdrant HTTP adapter.
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// QdrantStore talks to the Qdrant REST API. Point ids are the chunk UUIDs.
type QdrantStore struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Store = (*QdrantStore)(nil)

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, opErr("new_store", OperationErrorValidation, "qdrant base url is required", nil)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, opErr("new_store", OperationErrorValidation, "invalid qdrant base url", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &QdrantStore{baseURL: base, apiKey: cfg.APIKey, http: client}, nil
}

type qdrantEnvelope struct {
	Status json.RawMessage `json:"status"`
	Result json.RawMessage `json:"result"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantSearchHit struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := s.doJSON(ctx, "collection_exists", http.MethodGet, s.collectionPath(name, "/exists"), nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int, _ map[string]any) error {
	if dimension <= 0 {
		return opErr("create_collection", OperationErrorValidation, "dimension must be positive", nil)
	}
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(name, ""), body, nil)
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	err := s.doJSON(ctx, "delete_collection", http.MethodDelete, s.collectionPath(name, ""), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	var out struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := s.doJSON(ctx, "list_collections", http.MethodGet, "/collections", nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Collections))
	for _, c := range out.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *QdrantStore) InsertVectors(ctx context.Context, name string, vectors [][]float32, metadata []map[string]any, ids []string) ([]string, error) {
	if err := validateInsert("insert_vectors", vectors, metadata, ids); err != nil {
		return nil, err
	}
	points := make([]qdrantPoint, len(ids))
	for i, id := range ids {
		points[i] = qdrantPoint{
			ID:      id,
			Vector:  vectors[i],
			Payload: sanitizePayload(metadataAt(metadata, i)),
		}
	}
	err := s.doJSON(ctx, "insert_vectors", http.MethodPut, s.collectionPath(name, "/points?wait=true"), map[string]any{"points": points}, nil)
	if isNotFound(err) {
		return nil, opErr("insert_vectors", OperationErrorCollectionNotFound, "collection "+name+" does not exist", err)
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *QdrantStore) DeleteVectors(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.doJSON(ctx, "delete_vectors", http.MethodPost, s.collectionPath(name, "/points/delete?wait=true"), map[string]any{"points": ids}, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (s *QdrantStore) SearchVectors(ctx context.Context, name string, query Query) ([]Result, error) {
	cond, err := ParseFilter(query.Filter)
	if err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	body := map[string]any{
		"vector":       query.Vector,
		"limit":        limit,
		"offset":       query.Offset,
		"with_payload": true,
	}
	if query.MinSimilarity > 0 {
		body["score_threshold"] = query.MinSimilarity
	}
	if cond != nil {
		body["filter"] = qdrantFilter(*cond)
	}

	var hits []qdrantSearchHit
	err = s.doJSON(ctx, "search_vectors", http.MethodPost, s.collectionPath(name, "/points/search"), body, &hits)
	if isNotFound(err) {
		return []Result{}, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ID:       decodePointID(h.ID),
			Score:    clampScore(h.Score),
			Metadata: h.Payload,
		})
	}
	return results, nil
}

func (s *QdrantStore) collectionPath(name, suffix string) string {
	return "/collections/" + url.PathEscape(name) + suffix
}

func (s *QdrantStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
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
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	if out == nil {
		return nil
	}
	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var oe *OperationError
	return errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound
}

func truncateBody(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		return string(raw[:maxErrorBodyBytes]) + "..."
	}
	return string(raw)
}

func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

// sanitizePayload keeps scalars and scalar lists and stringifies anything else.
func sanitizePayload(payload map[string]any) map[string]any {
	clean := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case isScalar(v):
			clean[k] = v
		default:
			if items, err := toScalarSlice(v); err == nil {
				clean[k] = items
			} else {
				clean[k] = fmt.Sprint(v)
			}
		}
	}
	return clean
}

func qdrantFilter(c Condition) map[string]any {
	var must, should, mustNot []any

	switch c.Op {
	case FilterAnd:
		for _, child := range c.Children {
			must = append(must, qdrantFilter(child))
		}
	case FilterOr:
		for _, child := range c.Children {
			should = append(should, qdrantFilter(child))
		}
	case FilterNot:
		mustNot = append(mustNot, qdrantFilter(c.Children[0]))
	case FilterEq:
		must = append(must, map[string]any{"key": c.Field, "match": map[string]any{"value": c.Value}})
	case FilterNe:
		mustNot = append(mustNot, map[string]any{"key": c.Field, "match": map[string]any{"value": c.Value}})
	case FilterIn:
		must = append(must, map[string]any{"key": c.Field, "match": map[string]any{"any": c.Value}})
	case FilterNin:
		must = append(must, map[string]any{"key": c.Field, "match": map[string]any{"except": c.Value}})
	case FilterGt, FilterGte, FilterLt, FilterLte:
		must = append(must, map[string]any{"key": c.Field, "range": map[string]any{strings.TrimPrefix(c.Op, "$"): c.Value}})
	}

	out := map[string]any{}
	if len(must) > 0 {
		out["must"] = must
	}
	if len(should) > 0 {
		out["should"] = should
	}
	if len(mustNot) > 0 {
		out["must_not"] = mustNot
	}
	return out
}
