// Adapter-hubspot exposes HubSpot CRM contact and deal operations as tool
// calls. CRM search endpoints are slow upstream, so this adapter defaults to
// a 30s call deadline where the others use 15s.
package main

import (
	"bytes"
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

	"github.com/google/uuid"
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
	crmCategory              = "crm"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── OpenTelemetry ────────────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelShutdown, err := tbotel.Setup(ctx, tbotel.Config{
		ServiceName:    config.EnvOr("OTEL_SERVICE_NAME", "adapter-hubspot"),
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
	token := os.Getenv("HUBSPOT_ACCESS_TOKEN")
	if !mock && token == "" {
		log.Error("HUBSPOT_ACCESS_TOKEN is required when MOCK_UPSTREAMS is not true")
		os.Exit(1)
	}

	callTimeout := config.EnvOrDuration("CALL_TIMEOUT", 30*time.Second)
	up := &hubspotUpstream{
		log:        log,
		mock:       mock,
		token:      token,
		baseURL:    strings.TrimRight(config.EnvOr("HUBSPOT_API_URL", "https://api.hubapi.com"), "/"),
		httpClient: &http.Client{Timeout: callTimeout},
	}

	// ── Governor ─────────────────────────────────────────────────────────
	quotas, err := governor.ParseQuotas(config.EnvOr("HUBSPOT_QUOTAS", "5/1s,300/1m"))
	if err != nil {
		log.Error("invalid HUBSPOT_QUOTAS", "error", err)
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
		Name:     "adapter-hubspot",
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
		Name:        "adapter-hubspot",
		Log:         log,
		Handler:     router,
		Addr:        config.EnvOr("ADAPTER_HUBSPOT_ADDR", ":8085"),
		MetricsAddr: config.EnvOr("METRICS_ADDR", "127.0.0.1:9090"),
		CallTimeout: callTimeout,
	}) != nil {
		os.Exit(1)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// HubSpot upstream
// ──────────────────────────────────────────────────────────────────────────────

type hubspotUpstream struct {
	log        *slog.Logger
	mock       bool
	token      string
	baseURL    string
	httpClient *http.Client
}

func (u *hubspotUpstream) operations() []adapter.Spec {
	return []adapter.Spec{
		{
			Name:        "crm.contacts.search",
			Description: "Search contacts by free-text query.",
			Category:    crmCategory,
			Params: []adapter.ParamSpec{
				{Name: "query", Type: adapter.TypeString, Required: true, Description: "Search terms, matched against default contact properties."},
				{Name: "limit", Type: adapter.TypeInteger, Description: "Maximum contacts to return, up to 100."},
				{Name: "properties", Type: adapter.TypeStringList, Description: "Contact properties to include in results."},
			},
			Handler: u.searchContacts,
		},
		{
			Name:        "crm.contacts.create",
			Description: "Create a contact.",
			Category:    crmCategory,
			Params: []adapter.ParamSpec{
				{Name: "email", Type: adapter.TypeString, Required: true, Description: "Contact email, the deduplication key."},
				{Name: "first_name", Type: adapter.TypeString, Description: "Given name."},
				{Name: "last_name", Type: adapter.TypeString, Description: "Family name."},
				{Name: "phone", Type: adapter.TypeString, Description: "Phone number."},
				{Name: "company", Type: adapter.TypeString, Description: "Company name."},
			},
			Handler: u.createContact,
		},
		{
			Name:        "crm.deals.list",
			Description: "List deals, newest first.",
			Category:    crmCategory,
			Params: []adapter.ParamSpec{
				{Name: "limit", Type: adapter.TypeInteger, Description: "Maximum deals to return, up to 100."},
				{Name: "after", Type: adapter.TypeString, Description: "Paging cursor from a previous response."},
			},
			Handler: u.listDeals,
		},
	}
}

func (u *hubspotUpstream) searchContacts(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		u.log.Info("mock crm.contacts.search", "query", args.String("query"))
		return map[string]any{"total": 0, "results": []any{}, "mock": true}, nil
	}

	body := map[string]any{"query": args.String("query")}
	if n := args.Int("limit"); n > 0 {
		body["limit"] = n
	}
	if props := args.StringList("properties"); len(props) > 0 {
		body["properties"] = props
	}
	return u.post(ctx, "/crm/v3/objects/contacts/search", body)
}

func (u *hubspotUpstream) createContact(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		u.log.Info("mock crm.contacts.create", "email", args.String("email"))
		return map[string]any{
			"id":         "mock-" + uuid.NewString(),
			"properties": map[string]string{"email": args.String("email")},
			"mock":       true,
		}, nil
	}

	props := map[string]string{"email": args.String("email")}
	if v := args.String("first_name"); v != "" {
		props["firstname"] = v
	}
	if v := args.String("last_name"); v != "" {
		props["lastname"] = v
	}
	if v := args.String("phone"); v != "" {
		props["phone"] = v
	}
	if v := args.String("company"); v != "" {
		props["company"] = v
	}
	return u.post(ctx, "/crm/v3/objects/contacts", map[string]any{"properties": props})
}

func (u *hubspotUpstream) listDeals(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		return map[string]any{"results": []any{}, "mock": true}, nil
	}

	q := url.Values{}
	if n := args.Int("limit"); n > 0 {
		q.Set("limit", strconv.Itoa(n))
	}
	if v := args.String("after"); v != "" {
		q.Set("after", v)
	}
	target := u.baseURL + "/crm/v3/objects/deals"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return u.do(req)
}

func (u *hubspotUpstream) post(ctx context.Context, path string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return u.do(req)
}

func (u *hubspotUpstream) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Authorization", "Bearer "+u.token)

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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, toolcall.NewUpstreamError(resp.StatusCode, raw)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, toolcall.NewUpstreamError(resp.StatusCode, raw)
	}
	return payload, nil
}
