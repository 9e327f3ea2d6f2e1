// Adapter-rdap answers registration-data lookups for domains, IP addresses
// and AS numbers over RDAP. Responses are distilled to a compact summary
// rather than the raw registry object. A lookup that finds nothing is a
// successful call with found=false, not an error.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openrdap/rdap"

	"github.com/toolbridge/toolbridge/pkg/adapter"
	"github.com/toolbridge/toolbridge/pkg/auth"
	"github.com/toolbridge/toolbridge/pkg/config"
	"github.com/toolbridge/toolbridge/pkg/governor"
	"github.com/toolbridge/toolbridge/pkg/journal"
	tbotel "github.com/toolbridge/toolbridge/pkg/otel"
	"github.com/toolbridge/toolbridge/pkg/toolcall"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── OpenTelemetry ────────────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelShutdown, err := tbotel.Setup(ctx, tbotel.Config{
		ServiceName:    config.EnvOr("OTEL_SERVICE_NAME", "adapter-rdap"),
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
	// RDAP is a public protocol; no credential is needed even outside mock
	// mode. RDAP_BASE_URL pins every query to one server instead of the
	// bootstrap registry.
	var serverURL *url.URL
	if raw := os.Getenv("RDAP_BASE_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			log.Error("invalid RDAP_BASE_URL", "error", err)
			os.Exit(1)
		}
		serverURL = u
	}

	callTimeout := config.EnvOrDuration("CALL_TIMEOUT", 15*time.Second)
	up := &rdapUpstream{
		log:       log,
		mock:      config.EnvOrBool("MOCK_UPSTREAMS", false),
		client:    &rdap.Client{},
		serverURL: serverURL,
		timeout:   callTimeout,
	}

	// ── Governor ─────────────────────────────────────────────────────────
	quotas, err := governor.ParseQuotas(config.EnvOr("RDAP_QUOTAS", "2/1s,60/1m"))
	if err != nil {
		log.Error("invalid RDAP_QUOTAS", "error", err)
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
		Name:     "adapter-rdap",
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
		Name:        "adapter-rdap",
		Log:         log,
		Handler:     router,
		Addr:        config.EnvOr("ADAPTER_RDAP_ADDR", ":8086"),
		MetricsAddr: config.EnvOr("METRICS_ADDR", "127.0.0.1:9090"),
		CallTimeout: callTimeout,
	}) != nil {
		os.Exit(1)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// RDAP upstream
// ──────────────────────────────────────────────────────────────────────────────

type rdapUpstream struct {
	log       *slog.Logger
	mock      bool
	client    *rdap.Client
	serverURL *url.URL
	timeout   time.Duration
}

func (u *rdapUpstream) operations() []adapter.Spec {
	return []adapter.Spec{
		{
			Name:        "lookup.domain",
			Description: "Look up registration data for a domain name.",
			Params: []adapter.ParamSpec{
				{Name: "domain", Type: adapter.TypeString, Required: true, Description: "Fully qualified domain name."},
			},
			Validate: func(args adapter.Args) error {
				if !strings.Contains(args.String("domain"), ".") {
					return &toolcall.ValidationError{Field: "domain", Reason: "must be a fully qualified name"}
				}
				return nil
			},
			Handler: u.lookupDomain,
		},
		{
			Name:        "lookup.ip",
			Description: "Look up the registered network for an IP address.",
			Params: []adapter.ParamSpec{
				{Name: "ip", Type: adapter.TypeString, Required: true, Description: "IPv4 or IPv6 address."},
			},
			Validate: func(args adapter.Args) error {
				if net.ParseIP(strings.TrimSpace(args.String("ip"))) == nil {
					return &toolcall.ValidationError{Field: "ip", Reason: "must be an IPv4 or IPv6 address"}
				}
				return nil
			},
			Handler: u.lookupIP,
		},
		{
			Name:        "lookup.autnum",
			Description: "Look up registration data for an autonomous system number.",
			Params: []adapter.ParamSpec{
				{Name: "as_number", Type: adapter.TypeString, Required: true, Description: "AS number, with or without the AS prefix."},
			},
			Validate: func(args adapter.Args) error {
				_, err := parseAutnum(args.String("as_number"))
				return err
			},
			Handler: u.lookupAutnum,
		},
	}
}

type domainSummary struct {
	Found       bool     `json:"found"`
	Domain      string   `json:"domain"`
	Handle      string   `json:"handle,omitempty"`
	Status      []string `json:"status,omitempty"`
	Registrar   string   `json:"registrar,omitempty"`
	Registered  string   `json:"registered,omitempty"`
	Expires     string   `json:"expires,omitempty"`
	Nameservers []string `json:"nameservers,omitempty"`
}

type ipSummary struct {
	Found        bool     `json:"found"`
	IP           string   `json:"ip"`
	Handle       string   `json:"handle,omitempty"`
	StartAddress string   `json:"start_address,omitempty"`
	EndAddress   string   `json:"end_address,omitempty"`
	Name         string   `json:"name,omitempty"`
	Type         string   `json:"type,omitempty"`
	Country      string   `json:"country,omitempty"`
	Status       []string `json:"status,omitempty"`
	Registered   string   `json:"registered,omitempty"`
}

type autnumSummary struct {
	Found      bool     `json:"found"`
	ASNumber   uint32   `json:"as_number"`
	Handle     string   `json:"handle,omitempty"`
	Name       string   `json:"name,omitempty"`
	Type       string   `json:"type,omitempty"`
	Status     []string `json:"status,omitempty"`
	Registered string   `json:"registered,omitempty"`
}

func (u *rdapUpstream) lookupDomain(ctx context.Context, args adapter.Args) (any, error) {
	name := strings.ToLower(strings.TrimSpace(args.String("domain")))
	if u.mock {
		u.log.Info("mock lookup.domain", "domain", name)
		return map[string]any{"found": true, "domain": name, "handle": "MOCK-DOMAIN", "mock": true}, nil
	}

	resp, err := u.do(ctx, rdap.NewDomainRequest(name))
	if err != nil {
		if isNotFound(err, resp) {
			return domainSummary{Found: false, Domain: name}, nil
		}
		return nil, upstreamErr(ctx, err, resp)
	}

	domain, ok := resp.Object.(*rdap.Domain)
	if !ok {
		return nil, &toolcall.UpstreamError{Status: statusOf(resp), Body: "unexpected rdap response"}
	}
	return summarizeDomain(name, domain), nil
}

func (u *rdapUpstream) lookupIP(ctx context.Context, args adapter.Args) (any, error) {
	raw := strings.TrimSpace(args.String("ip"))
	if u.mock {
		return map[string]any{"found": true, "ip": raw, "handle": "MOCK-NET", "mock": true}, nil
	}

	resp, err := u.do(ctx, rdap.NewIPRequest(net.ParseIP(raw)))
	if err != nil {
		if isNotFound(err, resp) {
			return ipSummary{Found: false, IP: raw}, nil
		}
		return nil, upstreamErr(ctx, err, resp)
	}

	network, ok := resp.Object.(*rdap.IPNetwork)
	if !ok {
		return nil, &toolcall.UpstreamError{Status: statusOf(resp), Body: "unexpected rdap response"}
	}
	return ipSummary{
		Found:        true,
		IP:           raw,
		Handle:       network.Handle,
		StartAddress: network.StartAddress,
		EndAddress:   network.EndAddress,
		Name:         network.Name,
		Type:         network.Type,
		Country:      network.Country,
		Status:       network.Status,
		Registered:   eventDate(network.Events, "registration"),
	}, nil
}

func (u *rdapUpstream) lookupAutnum(ctx context.Context, args adapter.Args) (any, error) {
	asn, err := parseAutnum(args.String("as_number"))
	if err != nil {
		return nil, err
	}
	if u.mock {
		return map[string]any{"found": true, "as_number": asn, "handle": "MOCK-AS", "mock": true}, nil
	}

	resp, err := u.do(ctx, rdap.NewAutnumRequest(asn))
	if err != nil {
		if isNotFound(err, resp) {
			return autnumSummary{Found: false, ASNumber: asn}, nil
		}
		return nil, upstreamErr(ctx, err, resp)
	}

	autnum, ok := resp.Object.(*rdap.Autnum)
	if !ok {
		return nil, &toolcall.UpstreamError{Status: statusOf(resp), Body: "unexpected rdap response"}
	}
	return autnumSummary{
		Found:      true,
		ASNumber:   asn,
		Handle:     autnum.Handle,
		Name:       autnum.Name,
		Type:       autnum.Type,
		Status:     autnum.Status,
		Registered: eventDate(autnum.Events, "registration"),
	}, nil
}

func (u *rdapUpstream) do(ctx context.Context, req *rdap.Request) (*rdap.Response, error) {
	if u.serverURL != nil {
		req = req.WithServer(u.serverURL)
	}
	req.Timeout = u.timeout
	req = req.WithContext(ctx)
	return u.client.Do(req)
}

// ──────────────────────────────────────────────────────────────────────────────
// Response handling
// ──────────────────────────────────────────────────────────────────────────────

func parseAutnum(raw string) (uint32, error) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(raw)), "AS")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, &toolcall.ValidationError{Field: "as_number", Reason: "must be an AS number like AS15169"}
	}
	return uint32(n), nil
}

func summarizeDomain(name string, domain *rdap.Domain) domainSummary {
	s := domainSummary{
		Found:      true,
		Domain:     name,
		Handle:     domain.Handle,
		Status:     domain.Status,
		Registrar:  registrarName(domain),
		Registered: eventDate(domain.Events, "registration"),
		Expires:    eventDate(domain.Events, "expiration"),
	}
	for _, ns := range domain.Nameservers {
		if ns.LDHName != "" {
			s.Nameservers = append(s.Nameservers, strings.ToLower(ns.LDHName))
		}
	}
	return s
}

func registrarName(domain *rdap.Domain) string {
	for _, entity := range domain.Entities {
		for _, role := range entity.Roles {
			if role == "registrar" && entity.VCard != nil {
				return entity.VCard.Name()
			}
		}
	}
	return ""
}

func eventDate(events []rdap.Event, action string) string {
	for _, event := range events {
		if event.Action == action {
			return event.Date
		}
	}
	return ""
}

func isNotFound(err error, resp *rdap.Response) bool {
	if clientErr, ok := err.(*rdap.ClientError); ok && clientErr.Type == rdap.ObjectDoesNotExist {
		return true
	}
	return statusOf(resp) == http.StatusNotFound
}

func statusOf(resp *rdap.Response) int {
	if resp == nil || len(resp.HTTP) == 0 || resp.HTTP[0] == nil || resp.HTTP[0].Response == nil {
		return 0
	}
	return resp.HTTP[0].Response.StatusCode
}

func upstreamErr(ctx context.Context, err error, resp *rdap.Response) error {
	// Keep deadline errors bare so they classify as timeouts upstream.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &toolcall.UpstreamError{Status: statusOf(resp), Body: err.Error()}
}
