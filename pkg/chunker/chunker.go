package chunker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	DefaultSize    = 200
	DefaultOverlap = 20
)

var ErrEmptyContent = errors.New("no content to chunk")

// Settings controls the target window of a chunking strategy.
// Size and Overlap are expressed in estimated tokens.
type Settings struct {
	Size    int
	Overlap int
}

// Normalize fills defaults and clamps the overlap to half of the window.
func (s Settings) Normalize() Settings {
	if s.Size <= 0 {
		s.Size = DefaultSize
	}
	if s.Overlap < 0 {
		s.Overlap = 0
	}
	if s.Overlap > s.Size/2 {
		s.Overlap = s.Size / 2
	}
	return s
}

// Piece is one chunk produced by a strategy, in document order.
type Piece struct {
	Text     string
	Metadata map[string]interface{}
}

// Chunker splits markdown content into ordered pieces.
type Chunker interface {
	Name() string
	Chunk(content string, settings Settings) ([]Piece, error)
}

// Registry holds the chunking strategies selectable per resource.
type Registry struct {
	mu       sync.RWMutex
	chunkers map[string]Chunker
}

func NewRegistry(chunkers ...Chunker) *Registry {
	r := &Registry{chunkers: make(map[string]Chunker)}
	for _, c := range chunkers {
		r.chunkers[c.Name()] = c
	}
	return r
}

// NewDefaultRegistry registers the sentence and markdown strategies.
// The token strategy needs a tokenizer and is registered by the caller.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewSentenceChunker(), NewMarkdownChunker())
}

func (r *Registry) Register(c Chunker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkers[c.Name()] = c
}

func (r *Registry) Get(name string) (Chunker, error) {
	if name == "" {
		name = "default"
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunkers[name]
	if !ok {
		return nil, fmt.Errorf("unknown chunker: %s", name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.chunkers))
	for name := range r.chunkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
