package llm

import (
	"context"
	"net"
	"net/http"
	"time"
)

// DefaultChatTimeout bounds a non-streamed chat call.
const DefaultChatTimeout = 3 * time.Minute

// NewHTTPClient returns a client for model APIs. It has no overall timeout,
// so a stream lives as long as its request context. Dialing, the TLS
// handshake and the wait for response headers are bounded.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   8,
		},
	}
}

// WithChatTimeout applies timeout to ctx unless it already ends sooner.
func WithChatTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
