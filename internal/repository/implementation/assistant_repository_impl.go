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

type AssistantRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AssistantMapper
}

func NewAssistantRepository(db *gorm.DB) contract.AssistantRepository {
	return &AssistantRepositoryImpl{
		db:     db,
		mapper: mapper.NewAssistantMapper(),
	}
}

func (r *AssistantRepositoryImpl) Create(ctx context.Context, assistant *entity.Assistant) error {
	m := r.mapper.AssistantToModel(assistant)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*assistant = *r.mapper.AssistantToEntity(m)
	return nil
}

func (r *AssistantRepositoryImpl) Update(ctx context.Context, assistant *entity.Assistant) error {
	m := r.mapper.AssistantToModel(assistant)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	assistant.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *AssistantRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Assistant{}, "id = ?", id).Error
}

func (r *AssistantRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Assistant, error) {
	var m model.Assistant
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.AssistantToEntity(&m), nil
}

func (r *AssistantRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Assistant, error) {
	var models []*model.Assistant
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.Assistant, len(models))
	for i, m := range models {
		out[i] = r.mapper.AssistantToEntity(m)
	}
	return out, nil
}
