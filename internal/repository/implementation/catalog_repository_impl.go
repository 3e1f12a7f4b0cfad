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

type ProviderRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CatalogMapper
}

func NewProviderRepository(db *gorm.DB) contract.ProviderRepository {
	return &ProviderRepositoryImpl{
		db:     db,
		mapper: mapper.NewCatalogMapper(),
	}
}

func (r *ProviderRepositoryImpl) Create(ctx context.Context, provider *entity.Provider) error {
	m := r.mapper.ProviderToModel(provider)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*provider = *r.mapper.ProviderToEntity(m)
	return nil
}

func (r *ProviderRepositoryImpl) Update(ctx context.Context, provider *entity.Provider) error {
	return r.db.WithContext(ctx).Save(r.mapper.ProviderToModel(provider)).Error
}

func (r *ProviderRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Provider{}, "id = ?", id).Error
}

func (r *ProviderRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Provider, error) {
	var m model.Provider
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ProviderToEntity(&m), nil
}

func (r *ProviderRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Provider, error) {
	var models []*model.Provider
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.Provider, len(models))
	for i, m := range models {
		out[i] = r.mapper.ProviderToEntity(m)
	}
	return out, nil
}

type ModelRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CatalogMapper
}

func NewModelRepository(db *gorm.DB) contract.ModelRepository {
	return &ModelRepositoryImpl{
		db:     db,
		mapper: mapper.NewCatalogMapper(),
	}
}

func (r *ModelRepositoryImpl) Create(ctx context.Context, m *entity.Model) error {
	row := r.mapper.ModelToModel(m)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	*m = *r.mapper.ModelToEntity(row)
	return nil
}

func (r *ModelRepositoryImpl) Update(ctx context.Context, m *entity.Model) error {
	return r.db.WithContext(ctx).Save(r.mapper.ModelToModel(m)).Error
}

func (r *ModelRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.LLMModel{}, "id = ?", id).Error
}

func (r *ModelRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Model, error) {
	var row model.LLMModel
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ModelToEntity(&row), nil
}

func (r *ModelRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Model, error) {
	var rows []*model.LLMModel
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.Model, len(rows))
	for i, row := range rows {
		out[i] = r.mapper.ModelToEntity(row)
	}
	return out, nil
}
