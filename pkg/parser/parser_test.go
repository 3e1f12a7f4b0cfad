package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchParser_Select(t *testing.T) {
	d := NewDispatchParser()

	tests := []struct {
		name        string
		doc         Document
		expectedHow string
	}{
		{"pdf", Document{ContentType: "application/pdf"}, "pdf"},
		{"markdown octet stream", Document{Name: "README.md", ContentType: "application/octet-stream"}, "text"},
		{"plain octet stream", Document{Name: "blob.bin", ContentType: "application/octet-stream"}, "generic"},
		{"html with charset", Document{ContentType: "text/html; charset=utf-8"}, "html"},
		{"xhtml", Document{ContentType: "application/xhtml+xml"}, "html"},
		{"text", Document{ContentType: "text/markdown"}, "text"},
		{"image", Document{ContentType: "image/png"}, "image"},
		{"json", Document{ContentType: "application/json"}, "json"},
		{"lexical state", Document{ContentType: "application/json", Data: []byte(` {"root":{"type":"root"}}`)}, "lexical"},
		{"unknown", Document{ContentType: "application/zip"}, "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedHow, d.Select(tt.doc).Name())
		})
	}
}

func TestRegistry_Parse(t *testing.T) {
	reg := NewDefaultRegistry()
	ctx := context.Background()

	t.Run("text passthrough", func(t *testing.T) {
		res, err := reg.Parse(ctx, "", Document{ContentType: "text/plain", Data: []byte("hello world")})
		require.NoError(t, err)
		assert.Equal(t, "hello world", res.Markdown)
	})

	t.Run("html to markdown", func(t *testing.T) {
		res, err := reg.Parse(ctx, "default", Document{ContentType: "text/html", Data: []byte("<h1>Title</h1><p>Body <strong>bold</strong></p>")})
		require.NoError(t, err)
		assert.Contains(t, res.Markdown, "# Title")
		assert.Contains(t, res.Markdown, "**bold**")
	})

	t.Run("empty output fails", func(t *testing.T) {
		_, err := reg.Parse(ctx, "default", Document{ContentType: "text/plain", Data: []byte("   \n")})
		assert.ErrorIs(t, err, ErrEmptyOutput)
	})

	t.Run("unknown parser", func(t *testing.T) {
		_, err := reg.Parse(ctx, "docx", Document{})
		assert.Error(t, err)
	})

	t.Run("forced json on plain text", func(t *testing.T) {
		res, err := reg.Parse(ctx, "json", Document{Name: "notes", ContentType: "text/plain", Data: []byte("hi")})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.Markdown, "# notes\n\n## JSON Data\n\n```json\n"))
		assert.Contains(t, res.Markdown, `"content": "hi"`)
		assert.True(t, strings.HasSuffix(res.Markdown, "```"))
	})

	t.Run("pdf parse error", func(t *testing.T) {
		_, err := reg.Parse(ctx, "default", Document{ContentType: "application/pdf", Data: []byte("not a pdf")})
		assert.Error(t, err)
	})
}

func TestJSONParser(t *testing.T) {
	res, err := JSONParser{}.Parse(context.Background(), Document{Name: "data.json", Data: []byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, "# data.json\n\n## JSON Data\n\n```json\n{\n  \"a\": 1\n}\n```", res.Markdown)
}

func TestImageParser(t *testing.T) {
	t.Run("inline image becomes attachment", func(t *testing.T) {
		res, err := ImageParser{}.Parse(context.Background(), Document{Name: "logo.png", ContentType: "image/png", Data: []byte{1, 2}})
		require.NoError(t, err)
		assert.Equal(t, "![logo.png](attachment://logo.png)", res.Markdown)
		require.Len(t, res.Images, 1)
		assert.Equal(t, "image/png", res.Images[0].MimeType)
	})

	t.Run("remote image keeps its url", func(t *testing.T) {
		res, err := ImageParser{}.Parse(context.Background(), Document{Name: "logo", ContentType: "image/png", SourceURI: "https://example.com/logo.png"})
		require.NoError(t, err)
		assert.Equal(t, "![logo](https://example.com/logo.png)", res.Markdown)
		assert.Empty(t, res.Images)
	})
}

func TestGenericParser(t *testing.T) {
	res, err := GenericParser{}.Parse(context.Background(), Document{Name: "archive.zip", ContentType: "application/zip", SourceURI: "https://x/a.zip"})
	require.NoError(t, err)
	assert.Contains(t, res.Markdown, "# archive.zip")
	assert.Contains(t, res.Markdown, "**File Type**: application/zip")
	assert.Contains(t, res.Markdown, "[Open file](https://x/a.zip)")
}

func TestRasterImage(t *testing.T) {
	img := rasterImage([]byte{255, 0, 0, 0, 255, 0}, 2, 1, 3)
	r, g, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)
	_, g, _, _ = img.At(1, 0).RGBA()
	assert.Equal(t, uint32(0xffff), g)
}
