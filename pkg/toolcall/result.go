package toolcall

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/toolbridge/toolbridge/pkg/governor"
)

// Result is the outcome of one tool invocation. Failures ride in-band:
// IsError marks Content as a human-readable failure message rather than the
// operation's JSON payload. The transport status stays 200 either way.
type Result struct {
	CallID     string `json:"call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
	DurationMS int64  `json:"duration_ms"`
}

// Success serializes v as the result payload.
func Success(callID string, v any) Result {
	b, err := json.Marshal(v)
	if err != nil {
		return Failure(callID, "result serialization failed")
	}
	return Result{CallID: callID, Content: string(b)}
}

// Failure wraps a message in an error-flagged result.
func Failure(callID, msg string) Result {
	return Result{CallID: callID, Content: msg, IsError: true}
}

// FailureFrom maps a call error to an error-flagged result. Known kinds keep
// their message; anything unrecognized is reported generically so internal
// error chains stay out of the payload.
func FailureFrom(callID string, err error) Result {
	var (
		ve *ValidationError
		re *governor.RateLimitError
		te *governor.TimeoutError
		ue *UpstreamError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &re), errors.As(err, &te), errors.As(err, &ue):
		return Failure(callID, err.Error())
	case errors.Is(err, context.Canceled):
		return Failure(callID, "call cancelled")
	default:
		return Failure(callID, "internal error")
	}
}
