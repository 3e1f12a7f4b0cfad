package retriever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRetriever(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>hi</p>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0o600))

	reg := NewDefaultRegistry(NewHTTPRetriever(time.Second, 0), NewFileRetriever(dir, 0))
	rt, err := reg.Get("")
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name        string
		src         Source
		contentType string
		data        string
	}{
		{"http", Source{URI: srv.URL}, "text/html", "<p>hi</p>"},
		{"file uri", Source{URI: "file://" + filepath.Join(dir, "notes.md")}, "text/markdown; charset=utf-8", "# notes"},
		{"relative path", Source{URI: "notes.md"}, "text/markdown; charset=utf-8", "# notes"},
		{"inline", Source{Inline: []byte("plain words"), ContentType: "text/plain"}, "text/plain", "plain words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.Retrieve(ctx, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(got.Data))
			if tt.name == "http" || tt.name == "inline" {
				assert.Equal(t, tt.contentType, got.ContentType)
			} else {
				assert.NotEmpty(t, got.ContentType)
			}
		})
	}
}

func TestFileRetriever_OutsideRoot(t *testing.T) {
	f := NewFileRetriever(t.TempDir(), 0)
	_, err := f.Retrieve(context.Background(), Source{URI: "../../etc/passwd"})
	assert.Error(t, err)
}

func TestHTTPRetriever_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	h := NewHTTPRetriever(time.Second, 16)
	_, err := h.Retrieve(context.Background(), Source{URI: srv.URL + "/missing"})
	assert.Error(t, err)

	_, err = h.Retrieve(context.Background(), Source{URI: srv.URL + "/big"})
	assert.ErrorContains(t, err, "exceeds")
}

func TestInlineRetriever_Empty(t *testing.T) {
	_, err := InlineRetriever{}.Retrieve(context.Background(), Source{})
	assert.ErrorIs(t, err, ErrNoContent)
}
