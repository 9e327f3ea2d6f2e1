package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

func TestCallFillsCallIDAndDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/call", r.URL.Path)
		require.Equal(t, "sekret", r.Header.Get("X-API-Key"))

		var req toolcall.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.CallID, "client must fill in a call ID")

		json.NewEncoder(w).Encode(toolcall.Result{ //nolint:errcheck // test server
			CallID:  req.CallID,
			Content: `{"pong":true}`,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "sekret")
	res, err := c.Call(context.Background(), toolcall.Request{Tool: "echo", Action: "ping"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.CallID)
	require.Contains(t, res.Content, "pong")
}

func TestCallSurfacesEnvelopeRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		toolcall.ErrUnauthorized("invalid API key").WriteJSON(w)
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong")
	_, err := c.Call(context.Background(), toolcall.Request{Tool: "echo", Action: "ping"})

	var apiErr *toolcall.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "UNAUTHORIZED", apiErr.Code)
	require.Equal(t, http.StatusUnauthorized, apiErr.HTTPCode)
}

func TestCallEventuallyRetriesThrottle(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			toolcall.ErrRateLimited().WriteJSON(w)
			return
		}
		json.NewEncoder(w).Encode(toolcall.Result{CallID: "c1", Content: "{}"}) //nolint:errcheck // test server
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := New(srv.URL, "")
	res, err := c.CallEventually(ctx, toolcall.Request{Tool: "echo", Action: "ping"}, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.EqualValues(t, 3, hits.Load())
}

func TestListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tools", r.URL.Path)
		w.Write([]byte(`[{"name": "echo.ping", "category": "echo.ping"}]`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	infos, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "echo.ping", infos[0].Name)
}
