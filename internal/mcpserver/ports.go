// Package mcpserver exposes knowledge search to MCP clients over stdio or
// streamable HTTP.
package mcpserver

import (
	"context"
	"errors"

	"llm-knowledge-be/internal/dto"
)

var (
	ErrMissingSearchService     = errors.New("mcpserver: search service is required")
	ErrMissingCollectionService = errors.New("mcpserver: collection service is required")
)

type SearchService interface {
	Search(ctx context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error)
}

type CollectionService interface {
	GetAll(ctx context.Context) ([]*dto.CollectionResponse, error)
}

// Ports groups the services the server reads from.
type Ports struct {
	Search      SearchService
	Collections CollectionService
}

func (p *Ports) Validate() error {
	if p == nil || p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Collections == nil {
		return ErrMissingCollectionService
	}
	return nil
}
