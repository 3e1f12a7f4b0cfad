package implementation

import (
	"context"
	"errors"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/mapper"
	"llm-knowledge-be/internal/model"
	"llm-knowledge-be/internal/repository/contract"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GenerationJobRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.JobMapper
}

func NewGenerationJobRepository(db *gorm.DB) contract.GenerationJobRepository {
	return &GenerationJobRepositoryImpl{
		db:     db,
		mapper: mapper.NewJobMapper(),
	}
}

func (r *GenerationJobRepositoryImpl) Create(ctx context.Context, job *entity.GenerationJob) error {
	m := r.mapper.JobToModel(job)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*job = *r.mapper.JobToEntity(m)
	return nil
}

func (r *GenerationJobRepositoryImpl) Update(ctx context.Context, job *entity.GenerationJob) error {
	m := r.mapper.JobToModel(job)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	job.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *GenerationJobRepositoryImpl) TransitionState(ctx context.Context, id uuid.UUID, from []entity.JobState, fields map[string]interface{}) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	res := r.db.WithContext(ctx).Model(&model.GenerationJob{}).
		Where("id = ? AND state IN ?", id, states).
		Updates(encodeFields(fields))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GenerationJobRepositoryImpl) DeleteWhere(ctx context.Context, specs ...specification.Specification) (int64, error) {
	res := applySpecifications(r.db.WithContext(ctx), specs...).Delete(&model.GenerationJob{})
	return res.RowsAffected, res.Error
}

func (r *GenerationJobRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.GenerationJob, error) {
	var m model.GenerationJob
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.JobToEntity(&m), nil
}

func (r *GenerationJobRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.GenerationJob, error) {
	var models []*model.GenerationJob
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.JobsToEntities(models), nil
}

func (r *GenerationJobRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.GenerationJob{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

type GenerationQueueRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.JobMapper
}

func NewGenerationQueueRepository(db *gorm.DB) contract.GenerationQueueRepository {
	return &GenerationQueueRepositoryImpl{
		db:     db,
		mapper: mapper.NewJobMapper(),
	}
}

func (r *GenerationQueueRepositoryImpl) Create(ctx context.Context, queue *entity.GenerationQueue) error {
	m := r.mapper.QueueToModel(queue)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*queue = *r.mapper.QueueToEntity(m)
	return nil
}

func (r *GenerationQueueRepositoryImpl) Update(ctx context.Context, queue *entity.GenerationQueue) error {
	return r.db.WithContext(ctx).Save(r.mapper.QueueToModel(queue)).Error
}

func (r *GenerationQueueRepositoryImpl) FindByModel(ctx context.Context, modelID uuid.UUID) (*entity.GenerationQueue, error) {
	var m model.GenerationQueue
	if err := r.db.WithContext(ctx).Where("model_id = ?", modelID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.QueueToEntity(&m), nil
}

func (r *GenerationQueueRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.GenerationQueue, error) {
	var models []*model.GenerationQueue
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.GenerationQueue, len(models))
	for i, m := range models {
		out[i] = r.mapper.QueueToEntity(m)
	}
	return out, nil
}
