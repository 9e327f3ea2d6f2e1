package adapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/pkg/auth"
	"github.com/toolbridge/toolbridge/pkg/governor"
	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

func newTestRouter(t *testing.T, inboundRPS int, keys *auth.CallerKeys) (http.Handler, *captureJournal) {
	t.Helper()
	gov, err := governor.New([]governor.Quota{{Max: 1000, Window: time.Second}})
	require.NoError(t, err)
	reg, err := NewRegistry(echoSpec())
	require.NoError(t, err)
	jrn := &captureJournal{}
	disp, err := NewDispatcher(DispatcherConfig{
		Name:     "adapter-test",
		Registry: reg,
		Governor: gov,
		Timeout:  5 * time.Second,
		Journal:  jrn,
	})
	require.NoError(t, err)
	return NewRouter(RouterConfig{
		Dispatcher:  disp,
		Registry:    reg,
		CallerKeys:  keys,
		InboundRPS:  inboundRPS,
		CallTimeout: 5 * time.Second,
	}), jrn
}

func postCall(router http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/call", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterCallSuccess(t *testing.T) {
	router, _ := newTestRouter(t, 0, nil)

	rr := postCall(router, `{"tool": "echo", "action": "ping", "args": {"note": "hi"}}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var res toolcall.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.False(t, res.IsError)
	require.NotEmpty(t, res.CallID, "router must assign a call ID when the envelope has none")
	require.Contains(t, res.Content, `"note":"hi"`)
}

func TestRouterCallKeepsClientCallID(t *testing.T) {
	router, _ := newTestRouter(t, 0, nil)

	rr := postCall(router, `{"call_id": "given-by-client", "tool": "echo", "action": "ping"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var res toolcall.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "given-by-client", res.CallID)
}

func TestRouterCallBadJSON(t *testing.T) {
	router, _ := newTestRouter(t, 0, nil)

	rr := postCall(router, `{"tool": `, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var apiErr toolcall.APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	require.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestRouterCallInvalidEnvelope(t *testing.T) {
	router, _ := newTestRouter(t, 0, nil)

	rr := postCall(router, `{"tool": "echo"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var apiErr toolcall.APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	require.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	require.Contains(t, apiErr.Message, "action")
}

func TestRouterCallFailureStaysHTTP200(t *testing.T) {
	router, _ := newTestRouter(t, 0, nil)

	rr := postCall(router, `{"tool": "echo", "action": "pong"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, "per-call failures ride in the result, not the status")

	var res toolcall.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.True(t, res.IsError)
	require.Contains(t, res.Content, "unknown operation")
}

func TestRouterToolsListing(t *testing.T) {
	router, _ := newTestRouter(t, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var infos []toolInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	require.Equal(t, "echo.ping", infos[0].Name)
	require.Equal(t, "echo.ping", infos[0].Category)
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestRouter(t, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "OK", rr.Body.String())
}

func TestRouterInboundThrottle(t *testing.T) {
	router, _ := newTestRouter(t, 1, nil)

	body := `{"caller": "agent-7", "tool": "echo", "action": "ping"}`
	// Burst is twice the per-second rate, so two immediate calls pass.
	for range 2 {
		rr := postCall(router, body, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := postCall(router, body, nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	var apiErr toolcall.APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	require.Equal(t, "RATE_LIMITED", apiErr.Code)
	require.True(t, apiErr.Retryable)

	// A different caller is throttled independently.
	other := postCall(router, `{"caller": "agent-8", "tool": "echo", "action": "ping"}`, nil)
	require.Equal(t, http.StatusOK, other.Code)
}

func TestRouterRequiresKeyWhenConfigured(t *testing.T) {
	keys := auth.NewCallerKeys("agent-7:sekret")
	router, _ := newTestRouter(t, 0, keys)

	rr := postCall(router, `{"tool": "echo", "action": "ping"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterAuthOverridesEnvelopeCaller(t *testing.T) {
	keys := auth.NewCallerKeys("agent-7:sekret")
	router, jrn := newTestRouter(t, 0, keys)

	rr := postCall(router,
		`{"caller": "somebody-else", "tool": "echo", "action": "ping"}`,
		map[string]string{"X-API-Key": "sekret"})
	require.Equal(t, http.StatusOK, rr.Code)

	rec := jrn.last(t)
	require.Equal(t, "agent-7", rec.Caller, "authenticated identity must win over the envelope claim")
}
