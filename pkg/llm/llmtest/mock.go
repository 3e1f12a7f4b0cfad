// Package llmtest provides a scripted LLMProvider for tests.
package llmtest

import (
	"context"
	"sync"

	"llm-knowledge-be/pkg/llm"
)

// MockProvider replays Responses in order, one per Chat or Stream call, and
// records the histories it was given. When the script runs out it answers
// "mock response".
type MockProvider struct {
	mu        sync.Mutex
	Responses []llm.Response
	Err       error
	Calls     [][]llm.Message
	Options   []llm.Options
}

var _ llm.LLMProvider = (*MockProvider)(nil)

func (m *MockProvider) next(history []llm.Message, opts []llm.Option) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]llm.Message, len(history))
	copy(copied, history)
	m.Calls = append(m.Calls, copied)
	m.Options = append(m.Options, llm.ApplyOptions(llm.Options{}, opts...))

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return &llm.Response{Content: "mock response"}, nil
	}
	r := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &r, nil
}

func (m *MockProvider) Chat(_ context.Context, history []llm.Message, opts ...llm.Option) (*llm.Response, error) {
	return m.next(history, opts)
}

// Stream splits the scripted content into 8 byte chunks so
// callers see more than one delta.
func (m *MockProvider) Stream(_ context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamChunk, error) {
	resp, err := m.next(history, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 8)
	go func() {
		defer close(ch)
		content := resp.Content
		for len(content) > 0 {
			n := 8
			if n > len(content) {
				n = len(content)
			}
			ch <- llm.StreamChunk{Content: content[:n]}
			content = content[n:]
		}
		if len(resp.ToolCalls) > 0 {
			ch <- llm.StreamChunk{ToolCalls: resp.ToolCalls}
		}
	}()
	return ch, nil
}

// CallCount returns how many times the provider was invoked.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
