package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"llm-knowledge-be/internal/dto"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

type SearchInput struct {
	Query         string   `json:"query" jsonschema:"the text to search for"`
	CollectionID  string   `json:"collection_id,omitempty" jsonschema:"restrict the search to one collection id"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"minimum similarity between 0 and 1"`
}

type SearchHit struct {
	ChunkID      string  `json:"chunk_id"`
	ResourceID   string  `json:"resource_id"`
	ResourceName string  `json:"resource_name"`
	CollectionID string  `json:"collection_id"`
	Sequence     int     `json:"sequence"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
}

type SearchOutput struct {
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
	Skipped []string    `json:"skipped,omitempty"`
}

type ListCollectionsInput struct {
	ActiveOnly bool `json:"active_only,omitempty" jsonschema:"only list active collections"`
}

type CollectionInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Active        bool   `json:"active"`
	ResourceCount int    `json:"resource_count"`
}

type ListCollectionsOutput struct {
	Collections []CollectionInfo `json:"collections"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "knowledge_search",
		Description: "Semantic search over the embedded knowledge collections. Returns the best matching chunks with their source resource.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_collections",
		Description: "List the knowledge collections that can be searched.",
	}, s.handleListCollections)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, fmt.Errorf("query is required")
	}

	req := &dto.SearchRequest{
		Query:         query,
		Limit:         clampLimit(input.Limit),
		MinSimilarity: input.MinSimilarity,
	}
	if input.CollectionID != "" {
		id, err := uuid.Parse(input.CollectionID)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("collection_id is not a valid id: %q", input.CollectionID)
		}
		req.CollectionId = &id
	}

	resp, err := s.ports.Search.Search(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
	}

	out := SearchOutput{Results: make([]SearchHit, len(resp.Results))}
	for i, r := range resp.Results {
		out.Results[i] = SearchHit{
			ChunkID:      r.ChunkId.String(),
			ResourceID:   r.ResourceId.String(),
			ResourceName: r.ResourceName,
			CollectionID: r.CollectionId.String(),
			Sequence:     r.Sequence,
			Score:        r.Score,
			Content:      r.Content,
		}
	}
	out.Count = len(out.Results)
	for _, sk := range resp.SkippedCollections {
		out.Skipped = append(out.Skipped, fmt.Sprintf("%s: %s", sk.CollectionId, sk.Reason))
	}
	return nil, out, nil
}

func (s *Server) handleListCollections(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListCollectionsInput,
) (*mcp.CallToolResult, ListCollectionsOutput, error) {
	collections, err := s.collections(ctx, input.ActiveOnly)
	if err != nil {
		return nil, ListCollectionsOutput{}, err
	}
	return nil, ListCollectionsOutput{Collections: collections}, nil
}

func (s *Server) collections(ctx context.Context, activeOnly bool) ([]CollectionInfo, error) {
	all, err := s.ports.Collections.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	out := make([]CollectionInfo, 0, len(all))
	for _, c := range all {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, CollectionInfo{
			ID:            c.Id.String(),
			Name:          c.Name,
			Description:   c.Description,
			Active:        c.Active,
			ResourceCount: c.ResourceCount,
		})
	}
	return out, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultSearchLimit
	case n > maxSearchLimit:
		return maxSearchLimit
	default:
		return n
	}
}
