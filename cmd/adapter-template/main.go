// Adapter-template is the skeleton for new adapters: one echo operation
// wired through the full dispatch path. Copy it, swap in a real upstream and
// its quotas, and add the journal and telemetry blocks from a production
// adapter like adapter-slack.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/toolbridge/toolbridge/pkg/adapter"
	"github.com/toolbridge/toolbridge/pkg/config"
	"github.com/toolbridge/toolbridge/pkg/governor"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	quotas, err := governor.ParseQuotas(config.EnvOr("TEMPLATE_QUOTAS", "100/1s"))
	if err != nil {
		log.Error("invalid TEMPLATE_QUOTAS", "error", err)
		os.Exit(1)
	}
	gov, err := governor.New(quotas)
	if err != nil {
		log.Error("governor init failed", "error", err)
		os.Exit(1)
	}

	registry, err := adapter.NewRegistry(echoSpec())
	if err != nil {
		log.Error("registry init failed", "error", err)
		os.Exit(1)
	}

	callTimeout := config.EnvOrDuration("CALL_TIMEOUT", 15*time.Second)
	dispatcher, err := adapter.NewDispatcher(adapter.DispatcherConfig{
		Name:     "adapter-template",
		Log:      log,
		Registry: registry,
		Governor: gov,
		Timeout:  callTimeout,
	})
	if err != nil {
		log.Error("dispatcher init failed", "error", err)
		os.Exit(1)
	}

	router := adapter.NewRouter(adapter.RouterConfig{
		Log:         log,
		Dispatcher:  dispatcher,
		Registry:    registry,
		CallTimeout: callTimeout,
	})

	addr := config.EnvOr("ADAPTER_TEMPLATE_ADDR", ":8099")
	log.Info("adapter-template starting", "addr", addr)
	if err := http.ListenAndServe(addr, router); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func echoSpec() adapter.Spec {
	return adapter.Spec{
		Name:        "echo.ping",
		Description: "Echo the note back, for wiring checks.",
		Params: []adapter.ParamSpec{
			{Name: "note", Type: adapter.TypeString, Description: "Text to echo."},
		},
		Handler: func(_ context.Context, args adapter.Args) (any, error) {
			return map[string]any{"pong": true, "note": args.String("note")}, nil
		},
	}
}
