package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pobradovic08/myip/internal/api"
	"github.com/pobradovic08/myip/internal/config"
	"github.com/pobradovic08/myip/internal/iplookup"
	"github.com/pobradovic08/myip/internal/ratelimit"
	"github.com/pobradovic08/myip/internal/tlsutil"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (defaults are used when empty)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var metrics *api.MetricsCollector
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = api.NewMetricsCollector(reg)

		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	var rateLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rateLimiter, err = ratelimit.New(ratelimit.Options{
			RequestsPerInterval: cfg.RateLimit.RequestsPerInterval,
			Interval:            cfg.RateLimit.Interval,
			CleanupInterval:     cfg.RateLimit.CleanupInterval,
			StaleAfter:          cfg.RateLimit.StaleAfter,
			TrustedProxies:      cfg.RateLimit.TrustedProxies,
			OnReject:            metrics.IncRateLimitRejectionsTotal,
		})
		if err != nil {
			slog.Error("failed to create rate limiter", "error", err)
			os.Exit(1)
		}
		defer rateLimiter.Close()
	}

	var certLoader *tlsutil.CertificateLoader
	if cfg.TLS.Enabled() {
		certLoader, err = tlsutil.NewCertificateLoader(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			slog.Error("failed to load TLS certificate", "error", err)
			os.Exit(1)
		}
		defer certLoader.Close()
	}

	lookup := iplookup.New(cfg.Lookup.URL, cfg.Lookup.Timeout)

	apiServer := api.NewServer(api.ServerDeps{
		Handler: &api.APIHandler{
			Fetcher: lookup,
			Metrics: metrics,
		},
		RateLimiter:  rateLimiter,
		CertLoader:   certLoader,
		ListenAddr:   cfg.API.ListenAddr,
		WriteTimeout: cfg.API.WriteTimeout,
		ReadTimeout:  cfg.API.ReadTimeout,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 2)
	go func() {
		errCh <- apiServer.Start()
	}()
	if metricsSrv != nil {
		go func() {
			slog.Info("starting metrics server", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	slog.Info("myip running",
		"addr", cfg.API.ListenAddr,
		"lookup_url", lookup.URL(),
		"metrics", cfg.Metrics.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		slog.Error("server error, initiating shutdown", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	slog.Info("myip stopped")
}
