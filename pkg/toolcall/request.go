// Package toolcall defines the invocation envelope adapters accept and the
// result payload they return.
package toolcall

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ──────────────────────────────────────────────────────────────────────────────
// Limits
// ──────────────────────────────────────────────────────────────────────────────

const (
	MaxArgsBytes   = 64 * 1024 // 64 KB
	MaxToolBytes   = 64
	MaxActionBytes = 64
	MaxCallerBytes = 128
)

// ──────────────────────────────────────────────────────────────────────────────
// Request — one tool invocation as received on the wire.
// ──────────────────────────────────────────────────────────────────────────────

type Request struct {
	// Correlation. CallID is generated when the caller leaves it empty.
	CallID string `json:"call_id,omitempty"`
	Caller string `json:"caller,omitempty"`

	// Routing
	Tool   string `json:"tool"`
	Action string `json:"action"`

	// Inputs
	Args json.RawMessage `json:"args,omitempty"`
}

// Normalize lowercases and trims the routing fields.
func (r *Request) Normalize() {
	r.CallID = strings.TrimSpace(r.CallID)
	r.Caller = strings.TrimSpace(r.Caller)
	r.Tool = strings.ToLower(strings.TrimSpace(r.Tool))
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
}

// Validate enforces the envelope invariants. Also normalizes routing fields.
func (r *Request) Validate() error {
	r.Normalize()

	if r.Tool == "" {
		return &ValidationError{Field: "tool", Reason: "required"}
	}
	if len(r.Tool) > MaxToolBytes {
		return &ValidationError{Field: "tool", Reason: fmt.Sprintf("exceeds %d bytes", MaxToolBytes)}
	}
	if r.Action == "" {
		return &ValidationError{Field: "action", Reason: "required"}
	}
	if len(r.Action) > MaxActionBytes {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("exceeds %d bytes", MaxActionBytes)}
	}
	if len(r.Caller) > MaxCallerBytes {
		return &ValidationError{Field: "caller", Reason: fmt.Sprintf("exceeds %d bytes", MaxCallerBytes)}
	}
	if len(r.Args) > MaxArgsBytes {
		return &ValidationError{Field: "args", Reason: fmt.Sprintf("exceeds %d bytes", MaxArgsBytes)}
	}
	return nil
}

// Operation returns the combined "tool.action" string.
func (r *Request) Operation() string {
	return r.Tool + "." + r.Action
}
