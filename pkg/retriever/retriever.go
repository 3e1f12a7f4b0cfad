// Package retriever fetches the raw bytes behind a resource.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

var ErrNoContent = errors.New("resource has no source and no inline content")

// Source describes where a resource lives.
type Source struct {
	Name        string
	URI         string
	ContentType string
	Inline      []byte
}

type Retrieved struct {
	ContentType string
	Data        []byte
}

type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, src Source) (*Retrieved, error)
}

type Registry struct {
	mu         sync.RWMutex
	retrievers map[string]Retriever
}

func NewRegistry(retrievers ...Retriever) *Registry {
	r := &Registry{retrievers: make(map[string]Retriever)}
	for _, rt := range retrievers {
		r.Register(rt)
	}
	return r
}

// NewDefaultRegistry registers the source based dispatcher as "default" plus
// each concrete retriever under its own name.
func NewDefaultRegistry(httpRet *HTTPRetriever, fileRet *FileRetriever) *Registry {
	inline := InlineRetriever{}
	return NewRegistry(
		&DispatchRetriever{HTTP: httpRet, File: fileRet, Inline: inline},
		httpRet,
		fileRet,
		inline,
	)
}

func (r *Registry) Register(rt Retriever) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retrievers[rt.Name()] = rt
}

func (r *Registry) Get(name string) (Retriever, error) {
	if name == "" {
		name = "default"
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.retrievers[name]
	if !ok {
		return nil, fmt.Errorf("unknown retriever: %s", name)
	}
	return rt, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.retrievers))
	for n := range r.retrievers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DispatchRetriever chooses by source: http(s) URLs, file paths, or the
// inline bytes when there is no URI.
type DispatchRetriever struct {
	HTTP   Retriever
	File   Retriever
	Inline Retriever
}

func (d *DispatchRetriever) Name() string { return "default" }

func (d *DispatchRetriever) Retrieve(ctx context.Context, src Source) (*Retrieved, error) {
	uri := strings.TrimSpace(src.URI)
	lower := strings.ToLower(uri)
	switch {
	case uri == "":
		return d.Inline.Retrieve(ctx, src)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return d.HTTP.Retrieve(ctx, src)
	default:
		return d.File.Retrieve(ctx, src)
	}
}

// InlineRetriever returns the bytes stored on the resource itself.
type InlineRetriever struct{}

func (InlineRetriever) Name() string { return "inline" }

func (InlineRetriever) Retrieve(_ context.Context, src Source) (*Retrieved, error) {
	if len(src.Inline) == 0 {
		return nil, ErrNoContent
	}
	ct := src.ContentType
	if ct == "" {
		ct = http.DetectContentType(src.Inline)
	}
	return &Retrieved{ContentType: ct, Data: src.Inline}, nil
}
