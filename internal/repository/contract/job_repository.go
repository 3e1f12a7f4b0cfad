package contract

import (
	"context"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
)

type GenerationJobRepository interface {
	Create(ctx context.Context, job *entity.GenerationJob) error
	Update(ctx context.Context, job *entity.GenerationJob) error
	// TransitionState applies fields only while the job is in one of from.
	// It reports whether a row was changed.
	TransitionState(ctx context.Context, id uuid.UUID, from []entity.JobState, fields map[string]interface{}) (bool, error)
	DeleteWhere(ctx context.Context, specs ...specification.Specification) (int64, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.GenerationJob, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.GenerationJob, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}

type GenerationQueueRepository interface {
	Create(ctx context.Context, queue *entity.GenerationQueue) error
	Update(ctx context.Context, queue *entity.GenerationQueue) error
	FindByModel(ctx context.Context, modelID uuid.UUID) (*entity.GenerationQueue, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.GenerationQueue, error)
}
