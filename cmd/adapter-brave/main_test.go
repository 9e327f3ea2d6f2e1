package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/pkg/adapter"
	"github.com/toolbridge/toolbridge/pkg/governor"
	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

func newTestUpstream(server *httptest.Server) *braveUpstream {
	return &braveUpstream{
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		token:      "BSA-test-key",
		baseURL:    server.URL,
		httpClient: server.Client(),
	}
}

func TestSearchWebRequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/web/search", r.URL.Path)
		require.Equal(t, "BSA-test-key", r.Header.Get("X-Subscription-Token"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))

		q := r.URL.Query()
		require.Equal(t, "golang fixed window limiter", q.Get("q"))
		require.Equal(t, "5", q.Get("count"))
		require.Equal(t, "pw", q.Get("freshness"))
		require.Empty(t, q.Get("offset"))

		w.Write([]byte(`{"type": "search", "web": {"results": []}}`)) //nolint:errcheck // test server
	}))
	defer server.Close()

	payload, err := newTestUpstream(server).searchWeb(context.Background(), adapter.Args{
		"query":     "golang fixed window limiter",
		"count":     5,
		"freshness": "pw",
	})
	require.NoError(t, err)
	require.Equal(t, "search", payload.(map[string]any)["type"])
}

func TestSearchNewsRequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/news/search", r.URL.Path)
		require.Equal(t, "rate limits", r.URL.Query().Get("q"))

		w.Write([]byte(`{"type": "news", "results": []}`)) //nolint:errcheck // test server
	}))
	defer server.Close()

	payload, err := newTestUpstream(server).searchNews(context.Background(), adapter.Args{"query": "rate limits"})
	require.NoError(t, err)
	require.Equal(t, "news", payload.(map[string]any)["type"])
}

func TestUpstreamThrottleSurfaces429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"type": "ErrorResponse", "error": {"code": "RATE_LIMITED"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestUpstream(server).searchWeb(context.Background(), adapter.Args{"query": "x"})
	var upErr *toolcall.UpstreamError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, http.StatusTooManyRequests, upErr.Status)
}

// Both search operations draw on the one "search" quota category, matching
// how Brave meters the subscription rather than each endpoint.
func TestSearchOpsShareQuotaCategory(t *testing.T) {
	u := &braveUpstream{log: slog.New(slog.NewTextHandler(io.Discard, nil)), mock: true}

	gov, err := governor.New([]governor.Quota{{Max: 1, Window: time.Hour}})
	require.NoError(t, err)
	registry, err := adapter.NewRegistry(u.operations()...)
	require.NoError(t, err)
	dispatcher, err := adapter.NewDispatcher(adapter.DispatcherConfig{
		Name:     "adapter-brave",
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: registry,
		Governor: gov,
		Timeout:  time.Second,
	})
	require.NoError(t, err)

	web := dispatcher.Dispatch(context.Background(), &toolcall.Request{
		CallID: "c1", Tool: "search", Action: "web", Args: json.RawMessage(`{"query": "a"}`),
	})
	require.False(t, web.IsError)

	news := dispatcher.Dispatch(context.Background(), &toolcall.Request{
		CallID: "c2", Tool: "search", Action: "news", Args: json.RawMessage(`{"query": "b"}`),
	})
	require.True(t, news.IsError)
	require.Contains(t, news.Content, "rate limit exceeded for search")
}
