package vectorstore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// BackendConfig selects and configures one backend.
type BackendConfig struct {
	Service       string
	ConnectionURI string
	APIKey        string
	IndexMethod   string
}

// Open builds the Store for a backend. The pgvector backend reuses db.
func Open(cfg BackendConfig, db *gorm.DB) (Store, error) {
	switch strings.ToLower(cfg.Service) {
	case "qdrant":
		return NewQdrantStore(QdrantConfig{BaseURL: cfg.ConnectionURI, APIKey: cfg.APIKey})
	case "chroma":
		return NewChromaStore(ChromaConfig{BaseURL: cfg.ConnectionURI, APIKey: cfg.APIKey})
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("pgvector store requires a database connection")
		}
		return NewPgVectorStore(db, PgVectorConfig{IndexMethod: cfg.IndexMethod}), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported vector store service: %s", cfg.Service)
	}
}
