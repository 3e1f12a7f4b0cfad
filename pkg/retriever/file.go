package retriever

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FileRetriever reads local files. When Root is set, paths must resolve
// inside it.
type FileRetriever struct {
	Root     string
	MaxBytes int64
}

func NewFileRetriever(root string, maxBytes int64) *FileRetriever {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &FileRetriever{Root: root, MaxBytes: maxBytes}
}

func (f *FileRetriever) Name() string { return "file" }

func (f *FileRetriever) Retrieve(_ context.Context, src Source) (*Retrieved, error) {
	path, err := f.resolve(src.URI)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > f.MaxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, f.MaxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	ct := src.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(path))
	}
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Retrieved{ContentType: ct, Data: data}, nil
}

func (f *FileRetriever) resolve(uri string) (string, error) {
	path := strings.TrimPrefix(uri, "file://")
	if path == "" {
		return "", fmt.Errorf("empty file path")
	}
	if f.Root == "" {
		return filepath.Clean(path), nil
	}

	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside %s", uri, f.Root)
	}
	return path, nil
}
