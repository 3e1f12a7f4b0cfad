// Package parser converts retrieved resource bytes into markdown.
package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AttachmentScheme prefixes image references produced by parsers. Callers
// replace "attachment://<name>" with a served URL once the image is stored.
const AttachmentScheme = "attachment://"

var ErrEmptyOutput = errors.New("parser produced no content")

// Document is the retrieved form of a resource.
type Document struct {
	Name        string
	ContentType string
	SourceURI   string
	Data        []byte
}

// Image is binary content extracted while parsing, referenced from the
// markdown by AttachmentScheme + Name.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

type Result struct {
	Markdown string
	Images   []Image
	// Warnings are non fatal problems, e.g. an image that could not be decoded.
	Warnings []string
}

type Parser interface {
	Name() string
	Parse(ctx context.Context, doc Document) (*Result, error)
}

type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// NewDefaultRegistry registers the content type dispatcher as "default" and
// the forced JSON and Lexical parsers under their own names.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewDispatchParser(), JSONParser{}, LexicalParser{})
}

func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Name()] = p
}

func (r *Registry) Get(name string) (Parser, error) {
	if name == "" {
		name = "default"
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[name]
	if !ok {
		return nil, fmt.Errorf("unknown parser: %s", name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parsers))
	for n := range r.parsers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Parse runs the named parser and rejects blank output.
func (r *Registry) Parse(ctx context.Context, name string, doc Document) (*Result, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	res, err := p.Parse(ctx, doc)
	if err != nil {
		return nil, err
	}
	if res == nil || strings.TrimSpace(res.Markdown) == "" {
		return nil, ErrEmptyOutput
	}
	return res, nil
}

// DispatchParser picks a concrete parser from the document content type.
type DispatchParser struct {
	PDF      Parser
	HTML     Parser
	Text     Parser
	Image    Parser
	JSON     Parser
	Lexical  Parser
	Fallback Parser
}

func NewDispatchParser() *DispatchParser {
	return &DispatchParser{
		PDF:      PDFParser{},
		HTML:     HTMLParser{},
		Text:     TextParser{},
		Image:    ImageParser{},
		JSON:     JSONParser{},
		Lexical:  LexicalParser{},
		Fallback: GenericParser{},
	}
}

func (d *DispatchParser) Name() string { return "default" }

func (d *DispatchParser) Parse(ctx context.Context, doc Document) (*Result, error) {
	return d.Select(doc).Parse(ctx, doc)
}

// Select returns the parser used for doc.
func (d *DispatchParser) Select(doc Document) Parser {
	mimetype := strings.ToLower(strings.TrimSpace(doc.ContentType))
	if i := strings.IndexByte(mimetype, ';'); i >= 0 {
		mimetype = strings.TrimSpace(mimetype[:i])
	}
	isMarkdown := strings.Contains(strings.ToLower(doc.Name), ".md")

	switch {
	case mimetype == "application/pdf":
		return d.PDF
	// markdown uploads are often reported as octet-stream
	case mimetype == "application/octet-stream" && isMarkdown:
		return d.Text
	case strings.Contains(mimetype, "html"):
		return d.HTML
	case strings.HasPrefix(mimetype, "text/"):
		return d.Text
	case strings.HasPrefix(mimetype, "image/"):
		return d.Image
	case mimetype == "application/json" && isLexicalState(doc.Data):
		return d.Lexical
	case mimetype == "application/json":
		return d.JSON
	default:
		return d.Fallback
	}
}
