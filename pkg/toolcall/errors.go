package toolcall

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ──────────────────────────────────────────────────────────────────────────────
// Validation error (raised before any quota or network activity)
// ──────────────────────────────────────────────────────────────────────────────

type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// ──────────────────────────────────────────────────────────────────────────────
// Upstream error (non-2xx or undecodable third-party response)
// ──────────────────────────────────────────────────────────────────────────────

const maxUpstreamErrBytes = 512

type UpstreamError struct {
	Status int
	Body   string
}

// NewUpstreamError truncates body so oversized upstream failures cannot
// balloon the result payload.
func NewUpstreamError(status int, body []byte) *UpstreamError {
	b := strings.TrimSpace(string(body))
	if len(b) > maxUpstreamErrBytes {
		b = b[:maxUpstreamErrBytes] + "..."
	}
	return &UpstreamError{Status: status, Body: b}
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream request failed: %s", e.Body)
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// ──────────────────────────────────────────────────────────────────────────────
// APIError — structured error for envelope-level failures (bad JSON, auth,
// inbound throttling). Everything past envelope acceptance rides in-band in
// a Result instead.
// ──────────────────────────────────────────────────────────────────────────────

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	HTTPCode  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WriteJSON writes the error as JSON to the response writer.
func (e *APIError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPCode)
	_ = json.NewEncoder(w).Encode(e)
}

func ErrBadRequest(msg string) *APIError {
	return &APIError{Code: "BAD_REQUEST", Message: msg, HTTPCode: http.StatusBadRequest}
}

func ErrValidation(err error) *APIError {
	return &APIError{Code: "VALIDATION_ERROR", Message: err.Error(), HTTPCode: http.StatusUnprocessableEntity}
}

func ErrUnauthorized(msg string) *APIError {
	return &APIError{Code: "UNAUTHORIZED", Message: msg, HTTPCode: http.StatusUnauthorized}
}

func ErrRateLimited() *APIError {
	return &APIError{Code: "RATE_LIMITED", Message: "too many requests", Retryable: true, HTTPCode: http.StatusTooManyRequests}
}
