package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultMaxBytes = 50 << 20

type HTTPRetriever struct {
	Client   *http.Client
	MaxBytes int64
	// UserAgent is sent with every request when set.
	UserAgent string
}

func NewHTTPRetriever(timeout time.Duration, maxBytes int64) *HTTPRetriever {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &HTTPRetriever{
		Client:    &http.Client{Timeout: timeout},
		MaxBytes:  maxBytes,
		UserAgent: "llm-knowledge-be/1.0",
	}
}

func (h *HTTPRetriever) Name() string { return "http" }

func (h *HTTPRetriever) Retrieve(ctx context.Context, src Source) (*Retrieved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URI, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.URI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", src.URI, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > h.MaxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", src.URI, h.MaxBytes)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = src.ContentType
	}
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Retrieved{ContentType: ct, Data: data}, nil
}
