package implementation

import (
	"context"
	"errors"
	"time"

	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/mapper"
	"llm-knowledge-be/internal/model"
	"llm-knowledge-be/internal/repository/contract"
	"llm-knowledge-be/internal/repository/scope"
	"llm-knowledge-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResourceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KnowledgeMapper
}

func NewResourceRepository(db *gorm.DB) contract.ResourceRepository {
	return &ResourceRepositoryImpl{
		db:     db,
		mapper: mapper.NewKnowledgeMapper(),
	}
}

func (r *ResourceRepositoryImpl) Create(ctx context.Context, resource *entity.Resource) error {
	m := r.mapper.ResourceToModel(resource)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	collections := resource.CollectionIds
	*resource = *r.mapper.ResourceToEntity(m)
	resource.CollectionIds = collections
	return nil
}

func (r *ResourceRepositoryImpl) Update(ctx context.Context, resource *entity.Resource) error {
	m := r.mapper.ResourceToModel(resource)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	resource.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *ResourceRepositoryImpl) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Resource{}).Where("id = ?", id).Updates(fields).Error
}

func (r *ResourceRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("resource_id = ?", id).Delete(&model.ResourceCollection{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.Resource{}, "id = ?", id).Error
}

func (r *ResourceRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Resource, error) {
	var m model.Resource
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ResourceToEntity(&m), nil
}

func (r *ResourceRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Resource, error) {
	var models []*model.Resource
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ResourcesToEntities(models), nil
}

func (r *ResourceRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Resource{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Lock is a single conditional UPDATE, so two workers can never claim the
// same row. The claimed set is read back by holder.
func (r *ResourceRepositoryImpl) Lock(ctx context.Context, holder string, now, staleBefore time.Time, specs ...specification.Specification) ([]*entity.Resource, error) {
	conds := make([]specification.Specification, 0, len(specs)+1)
	conds = append(conds, specs...)
	conds = append(conds, specification.Unlocked{StaleBefore: staleBefore})

	res := applySpecifications(r.db.WithContext(ctx).Model(&model.Resource{}), conds...).
		Updates(map[string]interface{}{
			"lock_timestamp": now,
			"lock_holder":    holder,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var models []*model.Resource
	if err := r.db.WithContext(ctx).
		Where("lock_holder = ?", holder).
		Scopes(scope.OrderByCreatedAsc).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ResourcesToEntities(models), nil
}

func (r *ResourceRepositoryImpl) Unlock(ctx context.Context, id uuid.UUID, holder string) error {
	return r.db.WithContext(ctx).Model(&model.Resource{}).
		Where("id = ? AND lock_holder = ?", id, holder).
		Updates(map[string]interface{}{
			"lock_timestamp": nil,
			"lock_holder":    nil,
		}).Error
}

func (r *ResourceRepositoryImpl) AddToCollection(ctx context.Context, resourceID, collectionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ResourceCollection{ResourceId: resourceID, CollectionId: collectionID}).Error
}

func (r *ResourceRepositoryImpl) RemoveFromCollection(ctx context.Context, resourceID, collectionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("resource_id = ? AND collection_id = ?", resourceID, collectionID).
		Delete(&model.ResourceCollection{}).Error
}

func (r *ResourceRepositoryImpl) CollectionIDs(ctx context.Context, resourceID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.ResourceCollection{}).
		Where("resource_id = ?", resourceID).
		Pluck("collection_id", &ids).Error
	return ids, err
}

func (r *ResourceRepositoryImpl) ResourceIDs(ctx context.Context, collectionID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.ResourceCollection{}).
		Where("collection_id = ?", collectionID).
		Pluck("resource_id", &ids).Error
	return ids, err
}
