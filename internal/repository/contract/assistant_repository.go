package contract

import (
	"context"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
)

type AssistantRepository interface {
	Create(ctx context.Context, assistant *entity.Assistant) error
	Update(ctx context.Context, assistant *entity.Assistant) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Assistant, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Assistant, error)
}
