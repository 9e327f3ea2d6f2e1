// Adapter-gcal exposes Google Calendar event listing and creation as tool
// calls. Both operations share one quota category because Google meters the
// calendar API as a whole.
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
	eventsCategory           = "calendar.events"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── OpenTelemetry ────────────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelShutdown, err := tbotel.Setup(ctx, tbotel.Config{
		ServiceName:    config.EnvOr("OTEL_SERVICE_NAME", "adapter-gcal"),
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
	token := os.Getenv("GCAL_ACCESS_TOKEN")
	if !mock && token == "" {
		log.Error("GCAL_ACCESS_TOKEN is required when MOCK_UPSTREAMS is not true")
		os.Exit(1)
	}

	callTimeout := config.EnvOrDuration("CALL_TIMEOUT", 15*time.Second)
	up := &gcalUpstream{
		log:        log,
		mock:       mock,
		token:      token,
		baseURL:    strings.TrimRight(config.EnvOr("GCAL_API_URL", "https://www.googleapis.com/calendar/v3"), "/"),
		httpClient: &http.Client{Timeout: callTimeout},
	}

	// ── Governor ─────────────────────────────────────────────────────────
	quotas, err := governor.ParseQuotas(config.EnvOr("GCAL_QUOTAS", "500/100s"))
	if err != nil {
		log.Error("invalid GCAL_QUOTAS", "error", err)
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
		Name:     "adapter-gcal",
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
		Name:        "adapter-gcal",
		Log:         log,
		Handler:     router,
		Addr:        config.EnvOr("ADAPTER_GCAL_ADDR", ":8083"),
		MetricsAddr: config.EnvOr("METRICS_ADDR", "127.0.0.1:9090"),
		CallTimeout: callTimeout,
	}) != nil {
		os.Exit(1)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Google Calendar upstream
// ──────────────────────────────────────────────────────────────────────────────

type gcalUpstream struct {
	log        *slog.Logger
	mock       bool
	token      string
	baseURL    string
	httpClient *http.Client
}

func (u *gcalUpstream) operations() []adapter.Spec {
	return []adapter.Spec{
		{
			Name:        "calendar.events.list",
			Description: "List events from a calendar, expanded and ordered by start time.",
			Category:    eventsCategory,
			Params: []adapter.ParamSpec{
				{Name: "calendar_id", Type: adapter.TypeString, Required: true, Description: "Calendar ID, usually an email address or \"primary\"."},
				{Name: "time_min", Type: adapter.TypeString, Description: "RFC3339 lower bound on event start."},
				{Name: "time_max", Type: adapter.TypeString, Description: "RFC3339 upper bound on event start."},
				{Name: "query", Type: adapter.TypeString, Description: "Free-text search over event fields."},
				{Name: "max_results", Type: adapter.TypeInteger, Description: "Maximum events to return."},
			},
			Handler: u.listEvents,
		},
		{
			Name:        "calendar.events.create",
			Description: "Create an event on a calendar.",
			Category:    eventsCategory,
			Params: []adapter.ParamSpec{
				{Name: "calendar_id", Type: adapter.TypeString, Required: true, Description: "Calendar ID to create the event on."},
				{Name: "summary", Type: adapter.TypeString, Required: true, Description: "Event title."},
				{Name: "start", Type: adapter.TypeString, Required: true, Description: "RFC3339 start time."},
				{Name: "end", Type: adapter.TypeString, Required: true, Description: "RFC3339 end time."},
				{Name: "description", Type: adapter.TypeString, Description: "Event body text."},
				{Name: "location", Type: adapter.TypeString, Description: "Free-form location."},
				{Name: "attendees", Type: adapter.TypeStringList, Description: "Attendee email addresses."},
			},
			Handler: u.createEvent,
		},
	}
}

func (u *gcalUpstream) listEvents(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		return map[string]any{"kind": "calendar#events", "items": []any{}, "mock": true}, nil
	}

	q := url.Values{}
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	if v := args.String("time_min"); v != "" {
		q.Set("timeMin", v)
	}
	if v := args.String("time_max"); v != "" {
		q.Set("timeMax", v)
	}
	if v := args.String("query"); v != "" {
		q.Set("q", v)
	}
	if n := args.Int("max_results"); n > 0 {
		q.Set("maxResults", strconv.Itoa(n))
	}

	target := fmt.Sprintf("%s/calendars/%s/events?%s",
		u.baseURL, url.PathEscape(args.String("calendar_id")), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return u.do(req)
}

func (u *gcalUpstream) createEvent(ctx context.Context, args adapter.Args) (any, error) {
	if u.mock {
		u.log.Info("mock calendar.events.create", "summary", args.String("summary"))
		return map[string]any{
			"kind":    "calendar#event",
			"id":      "mock-" + uuid.NewString(),
			"status":  "confirmed",
			"summary": args.String("summary"),
			"mock":    true,
		}, nil
	}

	event := map[string]any{
		"summary": args.String("summary"),
		"start":   map[string]string{"dateTime": args.String("start")},
		"end":     map[string]string{"dateTime": args.String("end")},
	}
	if v := args.String("description"); v != "" {
		event["description"] = v
	}
	if v := args.String("location"); v != "" {
		event["location"] = v
	}
	if emails := args.StringList("attendees"); len(emails) > 0 {
		attendees := make([]map[string]string, 0, len(emails))
		for _, e := range emails {
			attendees = append(attendees, map[string]string{"email": e})
		}
		event["attendees"] = attendees
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	target := fmt.Sprintf("%s/calendars/%s/events", u.baseURL, url.PathEscape(args.String("calendar_id")))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return u.do(req)
}

func (u *gcalUpstream) do(req *http.Request) (map[string]any, error) {
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
