package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByState filters rows whose state column is one of States.
type ByState struct {
	States []string
}

func (s ByState) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("state IN ?", s.States)
}

type ByResourceID struct {
	ResourceID uuid.UUID
}

func (s ByResourceID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("resource_id = ?", s.ResourceID)
}

// InCollection matches resources that belong to the collection.
type InCollection struct {
	CollectionID uuid.UUID
}

func (s InCollection) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id IN (SELECT resource_id FROM resource_collections WHERE collection_id = ?)", s.CollectionID)
}

// WithoutChunks matches resources that have no stored chunks.
type WithoutChunks struct{}

func (s WithoutChunks) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("NOT EXISTS (SELECT 1 FROM resource_chunks rc WHERE rc.resource_id = resources.id)")
}

// Unlocked matches resources with no lock or a lock older than StaleBefore.
type Unlocked struct {
	StaleBefore time.Time
}

func (s Unlocked) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("(lock_timestamp IS NULL OR lock_timestamp < ?)", s.StaleBefore)
}

type ActiveOnly struct{}

func (s ActiveOnly) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("active = ?", true)
}

type ByEmbeddingModelID struct {
	ModelID uuid.UUID
}

func (s ByEmbeddingModelID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("embedding_model_id = ?", s.ModelID)
}

type ByStoreID struct {
	StoreID uuid.UUID
}

func (s ByStoreID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("store_id = ?", s.StoreID)
}

type ByResourceIDs struct {
	ResourceIDs []uuid.UUID
}

func (s ByResourceIDs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("resource_id IN ?", s.ResourceIDs)
}
