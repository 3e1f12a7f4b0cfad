package factory

import (
	"fmt"

	"llm-knowledge-be/pkg/embedding"
	"llm-knowledge-be/pkg/embedding/jina"
)

func NewEmbedder(cfg embedding.Config) (embedding.Embedder, error) {
	switch cfg.Service {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return embedding.NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "gemini":
		return embedding.NewGeminiProvider(cfg.APIKey, cfg.Model), nil
	case "jina":
		return jina.NewJinaProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Service)
	}
}
