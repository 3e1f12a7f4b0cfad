package parser

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

type TextParser struct{}

func (TextParser) Name() string { return "text" }

func (TextParser) Parse(_ context.Context, doc Document) (*Result, error) {
	return &Result{Markdown: string(doc.Data)}, nil
}

type HTMLParser struct{}

func (HTMLParser) Name() string { return "html" }

func (HTMLParser) Parse(_ context.Context, doc Document) (*Result, error) {
	md, err := htmltomarkdown.ConvertString(string(doc.Data))
	if err != nil {
		return nil, fmt.Errorf("convert html: %w", err)
	}
	return &Result{Markdown: md}, nil
}

// ImageParser stores the image itself as an attachment unless it already
// lives at a reachable URI.
type ImageParser struct{}

func (ImageParser) Name() string { return "image" }

func (ImageParser) Parse(_ context.Context, doc Document) (*Result, error) {
	name := displayName(doc)
	if doc.SourceURI != "" && !strings.HasPrefix(doc.SourceURI, "file://") {
		return &Result{Markdown: fmt.Sprintf("![%s](%s)", name, doc.SourceURI)}, nil
	}
	return &Result{
		Markdown: fmt.Sprintf("![%s](%s%s)", name, AttachmentScheme, name),
		Images:   []Image{{Name: name, MimeType: doc.ContentType, Data: doc.Data}},
	}, nil
}

// GenericParser describes content it cannot turn into text.
type GenericParser struct{}

func (GenericParser) Name() string { return "generic" }

func (GenericParser) Parse(_ context.Context, doc Document) (*Result, error) {
	mimetype := doc.ContentType
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", displayName(doc))
	fmt.Fprintf(&b, "**File Type**: %s\n\n", mimetype)
	fmt.Fprintf(&b, "**Description**: This file is of type %s which cannot be directly parsed into text content.\n", mimetype)
	if doc.SourceURI != "" {
		fmt.Fprintf(&b, "\n**Access**: [Open file](%s)\n", doc.SourceURI)
	}
	return &Result{Markdown: b.String()}, nil
}

func displayName(doc Document) string {
	if strings.TrimSpace(doc.Name) != "" {
		return doc.Name
	}
	if doc.SourceURI != "" {
		return doc.SourceURI
	}
	return "document"
}
