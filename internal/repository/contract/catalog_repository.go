package contract

import (
	"context"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ProviderRepository interface {
	Create(ctx context.Context, provider *entity.Provider) error
	Update(ctx context.Context, provider *entity.Provider) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Provider, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Provider, error)
}

type ModelRepository interface {
	Create(ctx context.Context, model *entity.Model) error
	Update(ctx context.Context, model *entity.Model) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Model, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Model, error)
}
