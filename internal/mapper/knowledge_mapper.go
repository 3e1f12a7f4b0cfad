package mapper

import (
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/model"
)

type KnowledgeMapper struct{}

func NewKnowledgeMapper() *KnowledgeMapper {
	return &KnowledgeMapper{}
}

// Resource Mappers

func (m *KnowledgeMapper) ResourceToEntity(r *model.Resource) *entity.Resource {
	if r == nil {
		return nil
	}
	return &entity.Resource{
		Id:                 r.Id,
		Name:               r.Name,
		SourceURI:          r.SourceURI,
		ContentType:        r.ContentType,
		RawContent:         r.RawContent,
		Retriever:          r.Retriever,
		Parser:             r.Parser,
		Chunker:            r.Chunker,
		TargetChunkSize:    r.TargetChunkSize,
		TargetChunkOverlap: r.TargetChunkOverlap,
		Content:            r.Content,
		State:              entity.ResourceState(r.State),
		LockTimestamp:      r.LockTimestamp,
		LockHolder:         r.LockHolder,
		LastError:          r.LastError,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (m *KnowledgeMapper) ResourceToModel(r *entity.Resource) *model.Resource {
	if r == nil {
		return nil
	}
	return &model.Resource{
		Id:                 r.Id,
		Name:               r.Name,
		SourceURI:          r.SourceURI,
		ContentType:        r.ContentType,
		RawContent:         r.RawContent,
		Retriever:          r.Retriever,
		Parser:             r.Parser,
		Chunker:            r.Chunker,
		TargetChunkSize:    r.TargetChunkSize,
		TargetChunkOverlap: r.TargetChunkOverlap,
		Content:            r.Content,
		State:              string(r.State),
		LockTimestamp:      r.LockTimestamp,
		LockHolder:         r.LockHolder,
		LastError:          r.LastError,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (m *KnowledgeMapper) ResourcesToEntities(models []*model.Resource) []*entity.Resource {
	out := make([]*entity.Resource, len(models))
	for i, r := range models {
		out[i] = m.ResourceToEntity(r)
	}
	return out
}

// Chunk Mappers

func (m *KnowledgeMapper) ChunkToEntity(c *model.Chunk) *entity.Chunk {
	if c == nil {
		return nil
	}
	return &entity.Chunk{
		Id:         c.Id,
		ResourceId: c.ResourceId,
		Sequence:   c.Sequence,
		Content:    c.Content,
		Metadata:   toMap(c.Metadata),
		CreatedAt:  c.CreatedAt,
	}
}

func (m *KnowledgeMapper) ChunkToModel(c *entity.Chunk) *model.Chunk {
	if c == nil {
		return nil
	}
	return &model.Chunk{
		Id:         c.Id,
		ResourceId: c.ResourceId,
		Sequence:   c.Sequence,
		Content:    c.Content,
		Metadata:   toJSON(c.Metadata),
		CreatedAt:  c.CreatedAt,
	}
}

func (m *KnowledgeMapper) ChunksToEntities(models []*model.Chunk) []*entity.Chunk {
	out := make([]*entity.Chunk, len(models))
	for i, c := range models {
		out[i] = m.ChunkToEntity(c)
	}
	return out
}

// Collection Mappers

func (m *KnowledgeMapper) CollectionToEntity(c *model.Collection) *entity.Collection {
	if c == nil {
		return nil
	}
	return &entity.Collection{
		Id:                  c.Id,
		Name:                c.Name,
		Description:         c.Description,
		Active:              c.Active,
		EmbeddingModelId:    c.EmbeddingModelId,
		StoreId:             c.StoreId,
		DefaultChunker:      c.DefaultChunker,
		DefaultParser:       c.DefaultParser,
		DefaultChunkSize:    c.DefaultChunkSize,
		DefaultChunkOverlap: c.DefaultChunkOverlap,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func (m *KnowledgeMapper) CollectionToModel(c *entity.Collection) *model.Collection {
	if c == nil {
		return nil
	}
	return &model.Collection{
		Id:                  c.Id,
		Name:                c.Name,
		Description:         c.Description,
		Active:              c.Active,
		EmbeddingModelId:    c.EmbeddingModelId,
		StoreId:             c.StoreId,
		DefaultChunker:      c.DefaultChunker,
		DefaultParser:       c.DefaultParser,
		DefaultChunkSize:    c.DefaultChunkSize,
		DefaultChunkOverlap: c.DefaultChunkOverlap,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func (m *KnowledgeMapper) CollectionsToEntities(models []*model.Collection) []*entity.Collection {
	out := make([]*entity.Collection, len(models))
	for i, c := range models {
		out[i] = m.CollectionToEntity(c)
	}
	return out
}

// Store Mappers

func (m *KnowledgeMapper) StoreToEntity(s *model.Store) *entity.Store {
	if s == nil {
		return nil
	}
	return &entity.Store{
		Id:            s.Id,
		Name:          s.Name,
		Service:       entity.StoreService(s.Service),
		ConnectionURI: s.ConnectionURI,
		APIKey:        s.APIKey,
		Active:        s.Active,
		Metadata:      toMap(s.Metadata),
		CreatedAt:     s.CreatedAt,
	}
}

func (m *KnowledgeMapper) StoreToModel(s *entity.Store) *model.Store {
	if s == nil {
		return nil
	}
	return &model.Store{
		Id:            s.Id,
		Name:          s.Name,
		Service:       string(s.Service),
		ConnectionURI: s.ConnectionURI,
		APIKey:        s.APIKey,
		Active:        s.Active,
		Metadata:      toJSON(s.Metadata),
		CreatedAt:     s.CreatedAt,
	}
}

// Attachment Mappers

func (m *KnowledgeMapper) AttachmentToEntity(a *model.ResourceAttachment) *entity.ResourceAttachment {
	if a == nil {
		return nil
	}
	return &entity.ResourceAttachment{
		Id:         a.Id,
		ResourceId: a.ResourceId,
		Name:       a.Name,
		MimeType:   a.MimeType,
		Data:       a.Data,
		CreatedAt:  a.CreatedAt,
	}
}

func (m *KnowledgeMapper) AttachmentToModel(a *entity.ResourceAttachment) *model.ResourceAttachment {
	if a == nil {
		return nil
	}
	return &model.ResourceAttachment{
		Id:         a.Id,
		ResourceId: a.ResourceId,
		Name:       a.Name,
		MimeType:   a.MimeType,
		Data:       a.Data,
		CreatedAt:  a.CreatedAt,
	}
}
