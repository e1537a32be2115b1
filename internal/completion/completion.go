package completion

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts providers that turn a structured request into a
// structured (but not fully trustworthy) JSON result.
type Client interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
	// Available reports whether the provider can be reached at all.
	// Callers with a deterministic fallback should check this before
	// spending a network round trip.
	Available() bool
}

// Request captures the inputs for one structured completion.
type Request struct {
	Task         string
	Instructions string
	Content      string
	Shape        string
}

type fixJSONKey struct{}

// WithFixJSON returns a context signaling a fix-JSON retry with the given raw output.
func WithFixJSON(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, fixJSONKey{}, raw)
}

// FixJSONFromContext returns the raw JSON to repair, if any.
func FixJSONFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(fixJSONKey{})
	raw, ok := val.(string)
	return raw, ok
}

// ErrUnavailable is returned when no provider is configured or reachable.
var ErrUnavailable = errors.New("completion capability unavailable")

// Unavailable is a Client with no backing provider. Every component that
// consumes it must carry its own deterministic fallback.
type Unavailable struct{}

// Complete returns ErrUnavailable.
func (Unavailable) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	_ = ctx
	_ = req
	return nil, ErrUnavailable
}

// Available reports false.
func (Unavailable) Available() bool { return false }
