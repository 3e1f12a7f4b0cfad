package contract

import (
	"context"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
)

type CollectionRepository interface {
	Create(ctx context.Context, collection *entity.Collection) error
	Update(ctx context.Context, collection *entity.Collection) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Collection, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Collection, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}

type StoreRepository interface {
	Create(ctx context.Context, store *entity.Store) error
	Update(ctx context.Context, store *entity.Store) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Store, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Store, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *entity.ResourceAttachment) error
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ResourceAttachment, error)
}
