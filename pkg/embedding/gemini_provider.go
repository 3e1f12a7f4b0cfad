package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type geminiContentPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiContentPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType,omitempty"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// GeminiProvider embeds with the Generative Language batchEmbedContents API.
type GeminiProvider struct {
	APIKey   string
	Model    string
	BaseURL  string
	TaskType string
	Client   *http.Client
}

var _ Embedder = (*GeminiProvider)(nil)

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiProvider{
		APIKey:   apiKey,
		Model:    model,
		BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
		TaskType: "RETRIEVAL_DOCUMENT",
		Client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	modelRef := "models/" + p.Model
	requests := make([]geminiEmbedRequest, len(texts))
	for i, text := range texts {
		requests[i] = geminiEmbedRequest{
			Model:    modelRef,
			Content:  geminiContent{Parts: []geminiContentPart{{Text: text}}},
			TaskType: p.TaskType,
		}
	}
	payload, err := json.Marshal(map[string]any{"requests": requests})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s:batchEmbedContents", p.BaseURL, modelRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resByte, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error from gemini response, code %d, body %s", res.StatusCode, string(resByte))
	}

	var batch geminiBatchResponse
	if err := json.Unmarshal(resByte, &batch); err != nil {
		return nil, err
	}
	if len(batch.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(batch.Embeddings), len(texts))
	}

	out := make([][]float32, len(batch.Embeddings))
	for i, e := range batch.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
