package mock

import (
	"context"
	"encoding/json"

	"insight-backend/internal/completion"
)

// Provider satisfies completion.Client for testing.
type Provider struct {
	CompleteFunc func(ctx context.Context, req completion.Request) (json.RawMessage, error)
	Unavailable  bool
}

// Complete delegates to CompleteFunc or returns an empty object.
func (p *Provider) Complete(ctx context.Context, req completion.Request) (json.RawMessage, error) {
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return json.RawMessage(`{}`), nil
}

// Available reports the configured availability.
func (p *Provider) Available() bool { return !p.Unavailable }

// Static returns a Provider that always answers with the given payload.
func Static(payload string) *Provider {
	return &Provider{
		CompleteFunc: func(_ context.Context, _ completion.Request) (json.RawMessage, error) {
			return json.RawMessage(payload), nil
		},
	}
}

// Failing returns a Provider that always returns err.
func Failing(err error) *Provider {
	return &Provider{
		CompleteFunc: func(_ context.Context, _ completion.Request) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// ByTask returns a Provider that routes on req.Task; tasks without an entry
// fall back to the def payload.
func ByTask(responses map[string]string, def string) *Provider {
	return &Provider{
		CompleteFunc: func(_ context.Context, req completion.Request) (json.RawMessage, error) {
			if payload, ok := responses[req.Task]; ok {
				return json.RawMessage(payload), nil
			}
			return json.RawMessage(def), nil
		},
	}
}

// Blocking returns a Provider that blocks until the context is cancelled.
func Blocking() *Provider {
	return &Provider{
		CompleteFunc: func(ctx context.Context, _ completion.Request) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

var _ completion.Client = (*Provider)(nil)
