package adapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/toolbridge/toolbridge/pkg/auth"
	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

// maxBodyBytes caps the inbound request body. Tool call envelopes are small;
// anything larger is a client bug or abuse.
const maxBodyBytes = 1 << 20

// RouterConfig wires the HTTP surface shared by all adapters.
type RouterConfig struct {
	Log         *slog.Logger
	Dispatcher  *Dispatcher
	Registry    *Registry
	CallerKeys  *auth.CallerKeys // optional; nil or empty disables auth
	InboundRPS  int              // per-caller inbound requests per second; 0 disables
	CallTimeout time.Duration
}

// toolInfo is the wire shape of one operation in the listing endpoint.
type toolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category"`
	Params      []ParamSpec `json:"params,omitempty"`
}

// NewRouter builds the adapter's HTTP router: POST /v1/call, GET /v1/tools
// and GET /healthz.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	limiter := newCallerLimiter(cfg.InboundRPS)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// The middleware deadline sits above the per-call deadline so the
	// dispatcher, not the router, is what cuts a slow upstream off.
	r.Use(middleware.Timeout(cfg.CallTimeout + 5*time.Second))
	if cfg.CallerKeys != nil && cfg.CallerKeys.Len() > 0 {
		r.Use(auth.CallerAuth(cfg.CallerKeys))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck // health probe
	})

	r.Get("/v1/tools", func(w http.ResponseWriter, _ *http.Request) {
		specs := cfg.Registry.List()
		infos := make([]toolInfo, 0, len(specs))
		for _, s := range specs {
			infos = append(infos, toolInfo{
				Name:        s.Name,
				Description: s.Description,
				Category:    s.Category,
				Params:      s.Params,
			})
		}
		writeJSON(log, w, http.StatusOK, infos)
	})

	r.Post("/v1/call", func(w http.ResponseWriter, req *http.Request) {
		body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
		var call toolcall.Request
		if err := json.NewDecoder(body).Decode(&call); err != nil {
			toolcall.ErrBadRequest("request body must be a JSON tool call").WriteJSON(w)
			return
		}
		if err := call.Validate(); err != nil {
			toolcall.ErrValidation(err).WriteJSON(w)
			return
		}

		// An authenticated caller identity overrides whatever the envelope
		// claims; unauthenticated deployments fall back to the envelope.
		if caller := auth.CallerFromContext(req.Context()); caller != "" {
			call.Caller = caller
		} else if call.Caller == "" {
			call.Caller = "anonymous"
		}

		if !limiter.allow(call.Caller) {
			toolcall.ErrRateLimited().WriteJSON(w)
			return
		}

		if call.CallID == "" {
			call.CallID = uuid.NewString()
		}

		res := cfg.Dispatcher.Dispatch(req.Context(), &call)
		writeJSON(log, w, http.StatusOK, res)
	})

	return r
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}
