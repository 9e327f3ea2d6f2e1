// Adapter-slack exposes Slack messaging as tool calls: posting, reading
// channel history and listing channels.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolbridge/toolbridge/pkg/adapter"
	"github.com/toolbridge/toolbridge/pkg/auth"
	"github.com/toolbridge/toolbridge/pkg/config"
	"github.com/toolbridge/toolbridge/pkg/governor"
	"github.com/toolbridge/toolbridge/pkg/journal"
	tbotel "github.com/toolbridge/toolbridge/pkg/otel"
	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

const maxUpstreamResponseBytes = 4 << 20

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── OpenTelemetry ────────────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelShutdown, err := tbotel.Setup(ctx, tbotel.Config{
		ServiceName:    config.EnvOr("OTEL_SERVICE_NAME", "adapter-slack"),
		OTLPEndpoint:   otelEndpoint,
		MetricsEnabled: true,
		TracingEnabled: otelEndpoint != "",
	})
	if err != nil {
		log.Error("otel setup failed", "error", err)
	} else {
		defer otelShutdown(context.Background()) //nolint:errcheck // best-effort shutdown
	}

	// ── Upstream ─────────────────────────────────────────────────────────
	mock := config.EnvOrBool("MOCK_UPSTREAMS", false)
	token := os.Getenv("SLACK_BOT_TOKEN")
	if !mock && token == "" {
		log.Error("SLACK_BOT_TOKEN is required when MOCK_UPSTREAMS is not true")
		os.Exit(1)
	}

	callTimeout := config.EnvOrDuration("CALL_TIMEOUT", 15*time.Second)
	up := &slackUpstream{
		log:        log,
		mock:       mock,
		token:      token,
		baseURL:    strings.TrimRight(config.EnvOr("SLACK_API_URL", "https://slack.com/api"), "/"),
		httpClient: &http.Client{Timeout: callTimeout},
	}

	// ── Governor ─────────────────────────────────────────────────────────
	quotas, err := governor.ParseQuotas(config.EnvOr("SLACK_QUOTAS", "5/1s,80/1m"))
	if err != nil {
		log.Error("invalid SLACK_QUOTAS", "error", err)
		os.Exit(1)
	}
	gov, err := governor.New(quotas)
	if err != nil {
		log.Error("governor init failed", "error", err)
		os.Exit(1)
	}

	registry, err := adapter.NewRegistry(up.operations()...)
	if err != nil {
		log.Error("registry init failed", "error", err)
		os.Exit(1)
	}

	// ── Journal (optional) ───────────────────────────────────────────────
	var jrn adapter.Journal
	if dbURL := os.Getenv("JOURNAL_DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Error("journal connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store := journal.NewStore(pool, log)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Error("journal schema failed", "error", err)
			os.Exit(1)
		}
		jrn = store
	}

	dispatcher, err := adapter.NewDispatcher(adapter.DispatcherConfig{
		Name:     "adapter-slack",
		Log:      log,
		Registry: registry,
		Governor: gov,
		Timeout:  callTimeout,
		Journal:  jrn,
	})
	if err != nil {
		log.Error("dispatcher init failed", "error", err)
		os.Exit(1)
	}

	router := adapter.NewRouter(adapter.RouterConfig{
		Log:         log,
		Dispatcher:  dispatcher,
		Registry:    registry,
		CallerKeys:  auth.NewCallerKeys(os.Getenv("CALLER_API_KEYS")),
		InboundRPS:  config.EnvOrInt("INBOUND_LIMIT_PER_CALLER", 50),
		CallTimeout: callTimeout,
	})

	if adapter.Run(ctx, adapter.RunConfig{
		Name:        "adapter-slack",
		Log:         log,
		Handler:     router,
		Addr:        config.EnvOr("ADAPTER_SLACK_ADDR", ":8082"),
		MetricsAddr: config.EnvOr("METRICS_ADDR", "127.0.0.1:9090"),
		CallTimeout: callTimeout,
	}) != nil {
		os.Exit(1)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Slack upstream
// ──────────────────────────────────────────────────────────────────────────────

type slackUpstream struct {
	log        *slog.Logger
	mock       bool
	token      string
	baseURL    string
	httpClient *http.Client
}

func (u *slackUpstream) operations() []adapter.Spec {
	return []adapter.Spec{
		{
			Name:        "chat.post",
			Description: "Post a message to a Slack channel.",
			Params: []adapter.ParamSpec{
				{Name: "channel", Type: adapter.TypeString, Required: true, Description: "Channel ID or name."},
				{Name: "text", Type: adapter.TypeString, Required: true, Description: "Message text."},
				{Name: "thread_ts", Type: adapter.TypeString, Description: "Parent timestamp to reply in thread."},
			},
			Handler: u.postMessage,
		},
		{
			Name:        "chat.history",
			Description: "Fetch recent messages from a channel.",
			Params: []adapter.ParamSpec{
				{Name: "channel", Type: adapter.TypeString, Required: true, Description: "Channel ID."},
				{Name: "limit", Type: adapter.TypeInteger, Description: "Maximum messages to return."},
				{Name: "oldest", Type: adapter.TypeString, Description: "Only messages after this timestamp."},
			},
			Handler: u.history,
		},
		{
			Name:        "channels.list",
			Description: "List channels visible to the bot.",
			Params: []adapter.ParamSpec{
				{Name: "types", Type: adapter.TypeStringList, Description: "Channel types to include."},
				{Name: "limit", Type: adapter.TypeInteger, Description: "Maximum channels to return."},
			},
			Handler: u.listChannels,
		},
	}
}

func (u *slackUpstream) postMessage(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		u.log.Info("mock chat.post", "channel", args.String("channel"), "text_len", len(args.String("text")))
		return map[string]any{
			"ok":      true,
			"channel": args.String("channel"),
			"ts":      fmt.Sprintf("%d.000000", time.Now().Unix()),
			"mock":    true,
		}, nil
	}

	body := map[string]string{
		"channel": args.String("channel"),
		"text":    args.String("text"),
	}
	if ts := args.String("thread_ts"); ts != "" {
		body["thread_ts"] = ts
	}
	return u.post(ctx, "chat.postMessage", body)
}

func (u *slackUpstream) history(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		return map[string]any{"ok": true, "messages": []any{}, "mock": true}, nil
	}

	q := url.Values{}
	q.Set("channel", args.String("channel"))
	if n := args.Int("limit"); n > 0 {
		q.Set("limit", strconv.Itoa(n))
	}
	if oldest := args.String("oldest"); oldest != "" {
		q.Set("oldest", oldest)
	}
	return u.get(ctx, "conversations.history", q)
}

func (u *slackUpstream) listChannels(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		return map[string]any{"ok": true, "channels": []any{}, "mock": true}, nil
	}

	q := url.Values{}
	if types := args.StringList("types"); len(types) > 0 {
		q.Set("types", strings.Join(types, ","))
	}
	if n := args.Int("limit"); n > 0 {
		q.Set("limit", strconv.Itoa(n))
	}
	return u.get(ctx, "conversations.list", q)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transport
// ──────────────────────────────────────────────────────────────────────────────

func (u *slackUpstream) get(ctx context.Context, method string, q url.Values) (map[string]any, error) {
	target := u.baseURL + "/" + method
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return u.do(req)
}

func (u *slackUpstream) post(ctx context.Context, method string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/"+method, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return u.do(req)
}

func (u *slackUpstream) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		// Keep deadline errors bare so they classify as timeouts upstream.
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &toolcall.UpstreamError{Body: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseBytes))
	if err != nil {
		return nil, &toolcall.UpstreamError{Body: "read response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, toolcall.NewUpstreamError(resp.StatusCode, raw)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, toolcall.NewUpstreamError(resp.StatusCode, raw)
	}
	// Slack reports API failures as 200 with ok=false.
	if ok, _ := payload["ok"].(bool); !ok {
		slackErr, _ := payload["error"].(string)
		return nil, &toolcall.UpstreamError{Status: resp.StatusCode, Body: "slack error: " + slackErr}
	}
	return payload, nil
}
