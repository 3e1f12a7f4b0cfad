package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"llm-knowledge-be/pkg/embedding"
	"llm-knowledge-be/pkg/llm"
	"llm-knowledge-be/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaEnv(t *testing.T, key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ollamaURL skips the test when no Ollama server answers.
func ollamaURL(t *testing.T) string {
	t.Helper()
	url := ollamaEnv(t, "OLLAMA_BASE_URL", "http://localhost:11434")
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url + "/api/tags")
	if err != nil {
		t.Skipf("Skipping integration test: Ollama not reachable at %s", url)
	}
	resp.Body.Close()
	return url
}

func TestOllamaChat(t *testing.T) {
	url := ollamaURL(t)
	provider := ollama.NewOllamaProvider(url, ollamaEnv(t, "OLLAMA_CHAT_MODEL", "gemma:2b"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	t.Run("chat", func(t *testing.T) {
		resp, err := provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: "Answer with a single word."},
			{Role: "user", Content: "What color is the sky on a clear day?"},
		}, llm.WithMaxTokens(16))
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Content)
	})

	t.Run("stream", func(t *testing.T) {
		chunks, err := provider.Stream(ctx, []llm.Message{{Role: "user", Content: "Count to three."}}, llm.WithMaxTokens(32))
		require.NoError(t, err)

		var text string
		for c := range chunks {
			require.NoError(t, c.Err)
			text += c.Content
		}
		assert.NotEmpty(t, text)
	})
}

func TestOllamaEmbedding(t *testing.T) {
	url := ollamaURL(t)
	embedder := embedding.NewOllamaProvider(url, ollamaEnv(t, "OLLAMA_EMBED_MODEL", "nomic-embed-text"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	vectors, err := embedder.Embed(ctx, []string{"first passage", "second passage"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotEmpty(t, vectors[0])
	assert.Equal(t, len(vectors[0]), len(vectors[1]))
}
