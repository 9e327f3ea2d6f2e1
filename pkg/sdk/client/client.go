// Package client is a small Go client for adapter daemons. It speaks the
// /v1/call and /v1/tools endpoints and surfaces envelope-level rejections as
// typed errors; per-call failures arrive inside the Result like any other
// outcome.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 45 * time.Second},
	}
}

// ToolInfo describes one operation an adapter advertises.
type ToolInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category"`
	Params      []json.RawMessage `json:"params,omitempty"`
}

// Call submits one tool call. A missing CallID is filled in client side so
// the response can always be correlated.
func (c *Client) Call(ctx context.Context, req toolcall.Request) (*toolcall.Result, error) {
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/call", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	var res toolcall.Result
	if err := c.doJSON(httpReq, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTools fetches the adapter's operation listing.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tools", http.NoBody)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	var infos []ToolInfo
	if err := c.doJSON(httpReq, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// CallEventually retries a call that was rejected by the adapter's inbound
// throttle, waiting pollEvery between attempts until the context expires.
// Only retryable envelope rejections are retried; everything else returns
// immediately.
func (c *Client) CallEventually(ctx context.Context, req toolcall.Request, pollEvery time.Duration) (*toolcall.Result, error) {
	t := time.NewTicker(pollEvery)
	defer t.Stop()

	for {
		res, err := c.Call(ctx, req)
		var apiErr *toolcall.APIError
		if err == nil || !errors.As(err, &apiErr) || !apiErr.Retryable {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr toolcall.APIError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			apiErr.HTTPCode = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}
