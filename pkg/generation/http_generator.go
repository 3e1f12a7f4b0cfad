package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// HTTPGenerator speaks the prediction style REST API shared by several
// hosted media backends: POST /predictions, GET /predictions/{id} and
// POST /predictions/{id}/cancel.
type HTTPGenerator struct {
	BaseURL    string
	APIKey     string
	WebhookURL string
	Client     *http.Client
}

var (
	_ Generator     = (*HTTPGenerator)(nil)
	_ WebhookParser = (*HTTPGenerator)(nil)
)

func NewHTTPGenerator(baseURL, apiKey, webhookURL string) *HTTPGenerator {
	return &HTTPGenerator{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type predictionRequest struct {
	Model   string         `json:"model"`
	Input   map[string]any `json:"input"`
	Webhook string         `json:"webhook,omitempty"`
}

type prediction struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output"`
	Error   any             `json:"error"`
	Metrics map[string]any  `json:"metrics"`
	URLs    map[string]any  `json:"urls"`
}

func (g *HTTPGenerator) Submit(ctx context.Context, model string, inputs map[string]any) (*Submission, error) {
	body := predictionRequest{Model: model, Input: inputs, Webhook: g.WebhookURL}
	var p prediction
	if err := g.do(ctx, http.MethodPost, "/predictions", body, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, fmt.Errorf("generation backend returned no job id")
	}
	return &Submission{
		ExternalID: p.ID,
		ProviderData: map[string]any{
			"status": p.Status,
			"urls":   p.URLs,
		},
	}, nil
}

func (g *HTTPGenerator) Status(ctx context.Context, externalID string) (*Status, error) {
	var p prediction
	if err := g.do(ctx, http.MethodGet, "/predictions/"+url.PathEscape(externalID), nil, &p); err != nil {
		return nil, err
	}
	return p.toStatus(), nil
}

func (g *HTTPGenerator) Cancel(ctx context.Context, externalID string) error {
	return g.do(ctx, http.MethodPost, "/predictions/"+url.PathEscape(externalID)+"/cancel", nil, nil)
}

func (g *HTTPGenerator) ParseWebhook(payload []byte) (*Status, error) {
	var p prediction
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	return p.toStatus(), nil
}

func (g *HTTPGenerator) do(ctx context.Context, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+p, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("generation backend error (status %d): %s", resp.StatusCode, truncate(string(raw), 512))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (p prediction) toStatus() *Status {
	st := &Status{ExternalID: p.ID, State: mapState(p.Status)}
	if p.Error != nil {
		st.Error = fmt.Sprint(p.Error)
	}
	if st.State == StateSucceeded {
		st.Result = &Result{Metadata: p.Metrics, Outputs: parseOutputs(p.Output)}
	}
	return st
}

func mapState(s string) State {
	switch strings.ToLower(s) {
	case "starting", "queued", "pending":
		return StatePending
	case "processing", "running":
		return StateRunning
	case "succeeded", "completed", "success":
		return StateSucceeded
	case "canceled", "cancelled":
		return StateCancelled
	case "failed", "error":
		return StateFailed
	default:
		return StatePending
	}
}

// parseOutputs accepts a single URL, a list of URLs or a list of objects
// carrying a url field.
func parseOutputs(raw json.RawMessage) []Output {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []Output{outputFromURL(single)}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	outputs := make([]Output, 0, len(list))
	for _, item := range list {
		var u string
		if err := json.Unmarshal(item, &u); err == nil {
			outputs = append(outputs, outputFromURL(u))
			continue
		}
		var o Output
		if err := json.Unmarshal(item, &o); err == nil && o.URL != "" {
			def := outputFromURL(o.URL)
			if o.ContentType == "" {
				o.ContentType = def.ContentType
			}
			if o.Filename == "" {
				o.Filename = def.Filename
			}
			outputs = append(outputs, o)
		}
	}
	return outputs
}

func outputFromURL(raw string) Output {
	name := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Output{URL: raw, ContentType: ct, Filename: name}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
