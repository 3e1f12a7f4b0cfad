// Package generation abstracts slow media generation backends that accept a
// job, run it asynchronously and expose its status.
package generation

import (
	"context"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

type Output struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
}

type Result struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Outputs  []Output       `json:"outputs"`
}

type Status struct {
	ExternalID string
	State      State
	Result     *Result
	Error      string
}

type Submission struct {
	ExternalID   string
	ProviderData map[string]any
}

type Generator interface {
	Submit(ctx context.Context, model string, inputs map[string]any) (*Submission, error)
	Status(ctx context.Context, externalID string) (*Status, error)
	Cancel(ctx context.Context, externalID string) error
}

// WebhookParser is implemented by generators whose backend can push
// completion notifications.
type WebhookParser interface {
	ParseWebhook(payload []byte) (*Status, error)
}
