// Package auth identifies callers of an adapter by API key.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

type contextKey string

const callerKey contextKey = "caller"

// CallerFromContext extracts the authenticated caller name from the context.
func CallerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}

// CallerAuth returns middleware that validates API keys and puts the caller
// name on the request context. Health probes stay open.
func CallerAuth(keys *CallerKeys) func(http.Handler) http.Handler {
	skipPaths := map[string]bool{
		"/healthz": true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				// Also check Authorization: Bearer
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				toolcall.ErrUnauthorized("missing API key").WriteJSON(w)
				return
			}

			caller, ok := keys.Lookup(apiKey)
			if !ok {
				toolcall.ErrUnauthorized("invalid API key").WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
