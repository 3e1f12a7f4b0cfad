package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const collectionsURI = "knowledge://collections"

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         collectionsURI,
		Name:        "collections",
		Description: "Knowledge collections and their resource counts",
		MIMEType:    "application/json",
	}, s.handleCollectionsResource)
}

func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	collections, err := s.collections(ctx, false)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(collections, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling collections: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
