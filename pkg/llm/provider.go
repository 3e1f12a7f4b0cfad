package llm

import (
	"context"
	"encoding/json"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role       string     `json:"role"` // "user", "assistant", "system", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the arguments as the raw JSON text the model produced.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a tool offered to the model.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// StreamChunk is one increment of a streamed reply. Content deltas arrive as
// they are produced; tool calls are delivered whole once assembled. A chunk
// with Err set is terminal.
type StreamChunk struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
	Tools       []Tool
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithTools(tools []Tool) Option {
	return func(o *Options) {
		o.Tools = tools
	}
}

func ApplyOptions(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the full reply
	Chat(ctx context.Context, history []Message, options ...Option) (*Response, error)

	// Stream sends a chat history and returns incremental chunks. The channel
	// is closed when the reply is complete or ctx is cancelled.
	Stream(ctx context.Context, history []Message, options ...Option) (<-chan StreamChunk, error)
}

// Generate sends a single prompt to the model (convenience method)
func Generate(ctx context.Context, p LLMProvider, prompt string, options ...Option) (string, error) {
	resp, err := p.Chat(ctx, []Message{{Role: "user", Content: prompt}}, options...)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
