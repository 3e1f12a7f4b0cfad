package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"llm-knowledge-be/pkg/llm"
)

var errStreamDone = errors.New("stream done")

// OpenAIProvider talks to any OpenAI compatible /chat/completions endpoint
// (OpenAI, HuggingFace router, vLLM, LM Studio, ...).
type OpenAIProvider struct {
	apiKey      string
	baseURL     string
	model       string
	client      *http.Client
	chatTimeout time.Duration
}

var _ llm.LLMProvider = (*OpenAIProvider)(nil)

// Request Payload Structure (OpenAI Compatible)
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []requestMessage `json:"messages"`
	Tools       []llm.Tool       `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

type requestMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []llm.ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		client:      llm.NewHTTPClient(2 * time.Minute),
		chatTimeout: llm.DefaultChatTimeout,
	}
}

// NewHuggingFaceProvider points the client at the HuggingFace inference router.
func NewHuggingFaceProvider(apiKey, baseURL, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/v1" // Default Router URL
	}
	return NewOpenAIProvider(apiKey, baseURL, model)
}

func (p *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (*llm.Response, error) {
	ctx, cancel := llm.WithChatTimeout(ctx, p.chatTimeout)
	defer cancel()
	resp, err := p.send(ctx, history, false, options...)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("chat api returned error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty choices from chat api")
	}

	out := &llm.Response{
		Content:   chatResp.Choices[0].Message.Content,
		ToolCalls: chatResp.Choices[0].Message.ToolCalls,
	}
	if chatResp.Usage != nil {
		out.Usage = llm.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:  chatResp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Stream emits content deltas as they arrive. Tool call fragments are
// accumulated by index and sent in a single final chunk.
func (p *OpenAIProvider) Stream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamChunk, error) {
	resp, err := p.send(ctx, history, true, options...)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		emit := func(c llm.StreamChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		pending := map[int]*llm.ToolCall{}
		err := readSSE(resp.Body, func(data string) error {
			if data == "[DONE]" {
				return errStreamDone
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return nil
			}
			if chunk.Error != nil {
				return fmt.Errorf("upstream stream error: %s", chunk.Error.Message)
			}
			for _, c := range chunk.Choices {
				for _, d := range c.Delta.ToolCalls {
					tc, ok := pending[d.Index]
					if !ok {
						tc = &llm.ToolCall{Type: "function"}
						pending[d.Index] = tc
					}
					if d.ID != "" {
						tc.ID = d.ID
					}
					if d.Type != "" {
						tc.Type = d.Type
					}
					tc.Function.Name += d.Function.Name
					tc.Function.Arguments += d.Function.Arguments
				}
				if c.Delta.Content != "" {
					if !emit(llm.StreamChunk{Content: c.Delta.Content}) {
						return ctx.Err()
					}
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStreamDone) {
			emit(llm.StreamChunk{Err: err})
			return
		}

		if len(pending) > 0 {
			emit(llm.StreamChunk{ToolCalls: collectToolCalls(pending)})
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) send(ctx context.Context, history []llm.Message, stream bool, options ...llm.Option) (*http.Response, error) {
	opts := llm.ApplyOptions(llm.Options{Model: p.model}, options...)

	reqBody := chatRequest{
		Model:     opts.Model,
		Messages:  toRequestMessages(history),
		Tools:     opts.Tools,
		MaxTokens: opts.MaxTokens,
		Stream:    stream,
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		reqBody.Temperature = &t
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat api error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

func toRequestMessages(history []llm.Message) []requestMessage {
	out := make([]requestMessage, len(history))
	for i, m := range history {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		out[i] = requestMessage{
			Role:       role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
	}
	return out
}

func collectToolCalls(pending map[int]*llm.ToolCall) []llm.ToolCall {
	idx := make([]int, 0, len(pending))
	for i := range pending {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	calls := make([]llm.ToolCall, 0, len(idx))
	for _, i := range idx {
		tc := *pending[i]
		if tc.Function.Arguments == "" {
			tc.Function.Arguments = "{}"
		}
		calls = append(calls, tc)
	}
	return calls
}
