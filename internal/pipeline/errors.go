package pipeline

import (
	"context"
	"errors"
	"strings"

	"insight-backend/internal/completion"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrCancelled = errors.New("job cancelled")
)

// Error codes attached to failed jobs.
const (
	ErrorCodeValidation            = "VALIDATION_ERROR"
	ErrorCodeCapabilityUnavailable = "CAPABILITY_UNAVAILABLE"
	ErrorCodeMalformedResponse     = "MALFORMED_RESPONSE"
	ErrorCodeStorage               = "STORAGE_ERROR"
	ErrorCodeCancelled             = "CANCELLED"
	ErrorCodeInternal              = "INTERNAL_ERROR"
)

func classifyFailure(err error) (string, bool) {
	if err == nil {
		return ErrorCodeInternal, false
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return ErrorCodeCancelled, false
	}
	if errors.Is(err, completion.ErrUnavailable) {
		return ErrorCodeCapabilityUnavailable, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeCapabilityUnavailable, true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") {
		return ErrorCodeCapabilityUnavailable, true
	}
	if strings.Contains(msg, "payload") || strings.Contains(msg, "no known shape") || strings.Contains(msg, "invalid json") {
		return ErrorCodeMalformedResponse, false
	}
	if strings.Contains(msg, "save job") || strings.Contains(msg, "load job") || strings.Contains(msg, "persist") || strings.Contains(msg, "storage") {
		return ErrorCodeStorage, true
	}
	if strings.Contains(msg, "required") || strings.Contains(msg, "empty content") {
		return ErrorCodeValidation, false
	}
	return ErrorCodeInternal, false
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
