package completion

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"strings"
	"time"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingClient struct {
	base      Client
	jobID     string
	requestID string
}

// NewRetrying wraps base with a single retry on transient failures.
func NewRetrying(base Client, jobID, requestID string) Client {
	if base == nil {
		return nil
	}
	return retryingClient{
		base:      base,
		jobID:     jobID,
		requestID: requestID,
	}
}

func (r retryingClient) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	resp, err := r.base.Complete(ctx, req)
	if err == nil || !shouldRetry(err) {
		return resp, err
	}

	log.Printf("completion retry attempt=1 request_id=%s job_id=%s task=%s error=%s", r.requestID, r.jobID, req.Task, sanitize(err))
	select {
	case <-time.After(retryBaseDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return r.base.Complete(ctx, req)
}

func (r retryingClient) Available() bool {
	return r.base.Available()
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}

func sanitize(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.TrimSpace(strings.ReplaceAll(msg, "\r", " "))
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
