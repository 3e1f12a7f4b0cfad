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

type CollectionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KnowledgeMapper
}

func NewCollectionRepository(db *gorm.DB) contract.CollectionRepository {
	return &CollectionRepositoryImpl{
		db:     db,
		mapper: mapper.NewKnowledgeMapper(),
	}
}

func (r *CollectionRepositoryImpl) Create(ctx context.Context, collection *entity.Collection) error {
	m := r.mapper.CollectionToModel(collection)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*collection = *r.mapper.CollectionToEntity(m)
	return nil
}

func (r *CollectionRepositoryImpl) Update(ctx context.Context, collection *entity.Collection) error {
	m := r.mapper.CollectionToModel(collection)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*collection = *r.mapper.CollectionToEntity(m)
	return nil
}

func (r *CollectionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("collection_id = ?", id).Delete(&model.ResourceCollection{}).Error; err != nil {
		return err
	}
	return db.Delete(&model.Collection{}, "id = ?", id).Error
}

func (r *CollectionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Collection, error) {
	var m model.Collection
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.CollectionToEntity(&m), nil
}

func (r *CollectionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Collection, error) {
	var models []*model.Collection
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.CollectionsToEntities(models), nil
}

func (r *CollectionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Collection{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

type StoreRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KnowledgeMapper
}

func NewStoreRepository(db *gorm.DB) contract.StoreRepository {
	return &StoreRepositoryImpl{
		db:     db,
		mapper: mapper.NewKnowledgeMapper(),
	}
}

func (r *StoreRepositoryImpl) Create(ctx context.Context, store *entity.Store) error {
	m := r.mapper.StoreToModel(store)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*store = *r.mapper.StoreToEntity(m)
	return nil
}

func (r *StoreRepositoryImpl) Update(ctx context.Context, store *entity.Store) error {
	m := r.mapper.StoreToModel(store)
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *StoreRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Store{}, "id = ?", id).Error
}

func (r *StoreRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Store, error) {
	var m model.Store
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.StoreToEntity(&m), nil
}

func (r *StoreRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Store, error) {
	var models []*model.Store
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.Store, len(models))
	for i, m := range models {
		out[i] = r.mapper.StoreToEntity(m)
	}
	return out, nil
}

type AttachmentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KnowledgeMapper
}

func NewAttachmentRepository(db *gorm.DB) contract.AttachmentRepository {
	return &AttachmentRepositoryImpl{
		db:     db,
		mapper: mapper.NewKnowledgeMapper(),
	}
}

func (r *AttachmentRepositoryImpl) Create(ctx context.Context, attachment *entity.ResourceAttachment) error {
	m := r.mapper.AttachmentToModel(attachment)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*attachment = *r.mapper.AttachmentToEntity(m)
	return nil
}

func (r *AttachmentRepositoryImpl) DeleteByResource(ctx context.Context, resourceID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("resource_id = ?", resourceID).Delete(&model.ResourceAttachment{}).Error
}

func (r *AttachmentRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ResourceAttachment, error) {
	var models []*model.ResourceAttachment
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.ResourceAttachment, len(models))
	for i, m := range models {
		out[i] = r.mapper.AttachmentToEntity(m)
	}
	return out, nil
}
