package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/pkg/adapter"
	"github.com/toolbridge/toolbridge/pkg/governor"
)

func TestEchoRoundTrip(t *testing.T) {
	gov, err := governor.New([]governor.Quota{{Max: 100, Window: time.Second}})
	require.NoError(t, err)
	registry, err := adapter.NewRegistry(echoSpec())
	require.NoError(t, err)
	dispatcher, err := adapter.NewDispatcher(adapter.DispatcherConfig{
		Name:     "adapter-template",
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: registry,
		Governor: gov,
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	router := adapter.NewRouter(adapter.RouterConfig{
		Dispatcher:  dispatcher,
		Registry:    registry,
		CallTimeout: time.Second,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/call",
		strings.NewReader(`{"tool": "echo", "action": "ping", "args": {"note": "hi"}}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `\"pong\":true`)
	require.Contains(t, rr.Body.String(), `\"note\":\"hi\"`)
}
