package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID gives a record a fresh uuid when the caller did not set one.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// AllModels lists every table owned by the service, in creation order.
func AllModels() []interface{} {
	return []interface{}{
		&Provider{},
		&LLMModel{},
		&Store{},
		&Collection{},
		&Resource{},
		&ResourceCollection{},
		&Chunk{},
		&ResourceAttachment{},
		&Assistant{},
		&Thread{},
		&Message{},
		&GenerationQueue{},
		&GenerationJob{},
	}
}

func (m *Provider) BeforeCreate(*gorm.DB) error           { assignID(&m.Id); return nil }
func (m *LLMModel) BeforeCreate(*gorm.DB) error           { assignID(&m.Id); return nil }
func (m *Store) BeforeCreate(*gorm.DB) error              { assignID(&m.Id); return nil }
func (m *Collection) BeforeCreate(*gorm.DB) error         { assignID(&m.Id); return nil }
func (m *Resource) BeforeCreate(*gorm.DB) error           { assignID(&m.Id); return nil }
func (m *Chunk) BeforeCreate(*gorm.DB) error              { assignID(&m.Id); return nil }
func (m *ResourceAttachment) BeforeCreate(*gorm.DB) error { assignID(&m.Id); return nil }
func (m *Thread) BeforeCreate(*gorm.DB) error             { assignID(&m.Id); return nil }
func (m *Message) BeforeCreate(*gorm.DB) error            { assignID(&m.Id); return nil }
func (m *GenerationQueue) BeforeCreate(*gorm.DB) error    { assignID(&m.Id); return nil }
func (m *GenerationJob) BeforeCreate(*gorm.DB) error      { assignID(&m.Id); return nil }
