// Adapter-brave exposes Brave web and news search as tool calls. The default
// quota mirrors the free plan: one query per second and a monthly ceiling,
// approximated here as a 720h window.
package main

import (
	"context"
	"encoding/json"
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

const (
	maxUpstreamResponseBytes = 4 << 20
	searchCategory           = "search"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── OpenTelemetry ────────────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelShutdown, err := tbotel.Setup(ctx, tbotel.Config{
		ServiceName:    config.EnvOr("OTEL_SERVICE_NAME", "adapter-brave"),
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
	token := os.Getenv("BRAVE_API_KEY")
	if !mock && token == "" {
		log.Error("BRAVE_API_KEY is required when MOCK_UPSTREAMS is not true")
		os.Exit(1)
	}

	callTimeout := config.EnvOrDuration("CALL_TIMEOUT", 15*time.Second)
	up := &braveUpstream{
		log:        log,
		mock:       mock,
		token:      token,
		baseURL:    strings.TrimRight(config.EnvOr("BRAVE_API_URL", "https://api.search.brave.com/res/v1"), "/"),
		httpClient: &http.Client{Timeout: callTimeout},
	}

	// ── Governor ─────────────────────────────────────────────────────────
	quotas, err := governor.ParseQuotas(config.EnvOr("BRAVE_QUOTAS", "1/1s,15000/720h"))
	if err != nil {
		log.Error("invalid BRAVE_QUOTAS", "error", err)
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
		Name:     "adapter-brave",
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
		Name:        "adapter-brave",
		Log:         log,
		Handler:     router,
		Addr:        config.EnvOr("ADAPTER_BRAVE_ADDR", ":8084"),
		MetricsAddr: config.EnvOr("METRICS_ADDR", "127.0.0.1:9090"),
		CallTimeout: callTimeout,
	}) != nil {
		os.Exit(1)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Brave Search upstream
// ──────────────────────────────────────────────────────────────────────────────

type braveUpstream struct {
	log        *slog.Logger
	mock       bool
	token      string
	baseURL    string
	httpClient *http.Client
}

var freshnessValues = []string{"pd", "pw", "pm", "py"}

func (u *braveUpstream) operations() []adapter.Spec {
	return []adapter.Spec{
		{
			Name:        "search.web",
			Description: "Search the web.",
			Category:    searchCategory,
			Params: []adapter.ParamSpec{
				{Name: "query", Type: adapter.TypeString, Required: true, Description: "Search terms."},
				{Name: "count", Type: adapter.TypeInteger, Description: "Results per page, up to 20."},
				{Name: "offset", Type: adapter.TypeInteger, Description: "Zero-based page offset."},
				{Name: "freshness", Type: adapter.TypeString, Enum: freshnessValues, Description: "Restrict to past day, week, month or year."},
				{Name: "safesearch", Type: adapter.TypeString, Enum: []string{"off", "moderate", "strict"}, Description: "Adult content filtering."},
			},
			Handler: u.searchWeb,
		},
		{
			Name:        "search.news",
			Description: "Search recent news articles.",
			Category:    searchCategory,
			Params: []adapter.ParamSpec{
				{Name: "query", Type: adapter.TypeString, Required: true, Description: "Search terms."},
				{Name: "count", Type: adapter.TypeInteger, Description: "Results per page, up to 20."},
				{Name: "freshness", Type: adapter.TypeString, Enum: freshnessValues, Description: "Restrict to past day, week, month or year."},
			},
			Handler: u.searchNews,
		},
	}
}

func (u *braveUpstream) searchWeb(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		u.log.Info("mock search.web", "query", args.String("query"))
		return map[string]any{"type": "search", "web": map[string]any{"results": []any{}}, "mock": true}, nil
	}

	q := url.Values{}
	q.Set("q", args.String("query"))
	if n := args.Int("count"); n > 0 {
		q.Set("count", strconv.Itoa(n))
	}
	if n := args.Int("offset"); n > 0 {
		q.Set("offset", strconv.Itoa(n))
	}
	if v := args.String("freshness"); v != "" {
		q.Set("freshness", v)
	}
	if v := args.String("safesearch"); v != "" {
		q.Set("safesearch", v)
	}
	return u.get(ctx, "/web/search", q)
}

func (u *braveUpstream) searchNews(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		return map[string]any{"type": "news", "results": []any{}, "mock": true}, nil
	}

	q := url.Values{}
	q.Set("q", args.String("query"))
	if n := args.Int("count"); n > 0 {
		q.Set("count", strconv.Itoa(n))
	}
	if v := args.String("freshness"); v != "" {
		q.Set("freshness", v)
	}
	return u.get(ctx, "/news/search", q)
}

func (u *braveUpstream) get(ctx context.Context, path string, q url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", u.token)

	resp, err := u.httpClient.Do(req)
	if err != nil {
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
	return payload, nil
}
