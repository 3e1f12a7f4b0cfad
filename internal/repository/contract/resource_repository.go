package contract

import (
	"context"
	"time"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ResourceRepository interface {
	Create(ctx context.Context, resource *entity.Resource) error
	Update(ctx context.Context, resource *entity.Resource) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Resource, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Resource, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// Lock claims every unlocked (or stale) resource matching specs for holder
	// and returns the claimed rows.
	Lock(ctx context.Context, holder string, now, staleBefore time.Time, specs ...specification.Specification) ([]*entity.Resource, error)
	Unlock(ctx context.Context, id uuid.UUID, holder string) error

	AddToCollection(ctx context.Context, resourceID, collectionID uuid.UUID) error
	RemoveFromCollection(ctx context.Context, resourceID, collectionID uuid.UUID) error
	CollectionIDs(ctx context.Context, resourceID uuid.UUID) ([]uuid.UUID, error)
	ResourceIDs(ctx context.Context, collectionID uuid.UUID) ([]uuid.UUID, error)
}
