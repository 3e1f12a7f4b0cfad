package mapper

import (
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/model"
)

type CatalogMapper struct{}

func NewCatalogMapper() *CatalogMapper {
	return &CatalogMapper{}
}

func (m *CatalogMapper) ProviderToEntity(p *model.Provider) *entity.Provider {
	if p == nil {
		return nil
	}
	return &entity.Provider{
		Id:        p.Id,
		Name:      p.Name,
		Service:   p.Service,
		BaseURL:   p.BaseURL,
		APIKey:    p.APIKey,
		CreatedAt: p.CreatedAt,
	}
}

func (m *CatalogMapper) ProviderToModel(p *entity.Provider) *model.Provider {
	if p == nil {
		return nil
	}
	return &model.Provider{
		Id:        p.Id,
		Name:      p.Name,
		Service:   p.Service,
		BaseURL:   p.BaseURL,
		APIKey:    p.APIKey,
		CreatedAt: p.CreatedAt,
	}
}

func (m *CatalogMapper) ModelToEntity(lm *model.LLMModel) *entity.Model {
	if lm == nil {
		return nil
	}
	return &entity.Model{
		Id:                lm.Id,
		ProviderId:        lm.ProviderId,
		Name:              lm.Name,
		Use:               entity.ModelUse(lm.Use),
		SupportsStreaming: lm.SupportsStreaming,
		Dimensions:        lm.Dimensions,
		CreatedAt:         lm.CreatedAt,
	}
}

func (m *CatalogMapper) ModelToModel(e *entity.Model) *model.LLMModel {
	if e == nil {
		return nil
	}
	return &model.LLMModel{
		Id:                e.Id,
		ProviderId:        e.ProviderId,
		Name:              e.Name,
		Use:               string(e.Use),
		SupportsStreaming: e.SupportsStreaming,
		Dimensions:        e.Dimensions,
		CreatedAt:         e.CreatedAt,
	}
}
