package adapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunConfig describes the listeners one adapter process runs.
type RunConfig struct {
	Name        string
	Log         *slog.Logger
	Handler     http.Handler
	Addr        string
	MetricsAddr string        // "" disables the internal metrics listener
	CallTimeout time.Duration // stretches the write timeout past the call deadline
}

// Run serves the adapter until ctx is cancelled, then shuts both listeners
// down gracefully. It returns the listener error, if any, once everything
// has stopped.
func Run(ctx context.Context, cfg RunConfig) error {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       30 * time.Second,
		}
		go func() {
			log.Info("metrics server starting", "adapter", cfg.Name, "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	// The write timeout must outlast the call deadline or a slow upstream
	// call has its response cut off mid flight.
	writeTimeout := 30 * time.Second
	if cfg.CallTimeout+10*time.Second > writeTimeout {
		writeTimeout = cfg.CallTimeout + 10*time.Second
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cfg.Handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("adapter starting", "adapter", cfg.Name, "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			cancel()
		}
	}()

	<-ctx.Done()

	var srvErr error
	select {
	case srvErr = <-errCh:
		log.Error("server error", "error", srvErr)
	default:
	}

	log.Info("shutting down", "adapter", cfg.Name)
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutCtx); err != nil {
			log.Error("metrics server shutdown error", "error", err)
		}
	}
	return srvErr
}
