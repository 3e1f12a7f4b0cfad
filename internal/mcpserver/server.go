package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"llm-knowledge-be/internal/pkg/logger"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ServerName = "llm-knowledge"
	Version    = "0.1.0"
)

type Server struct {
	ports  *Ports
	server *mcp.Server
	logger logger.ILogger
}

func NewServer(ports *Ports, log logger.ILogger) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: Version}, nil),
		logger: log,
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler so the server can be mounted
// next to other routes.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves streamable HTTP on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("MCP", "MCP HTTP server listening", map[string]interface{}{"addr": addr})
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
