package contract

import (
	"context"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []*entity.Chunk) error
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Chunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
