package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/binaryelements/becaller/internal/apiclient"
	"github.com/binaryelements/becaller/internal/config"
	"github.com/binaryelements/becaller/internal/jambonz"
	"github.com/binaryelements/becaller/internal/livecalls"
	"github.com/binaryelements/becaller/internal/observability/metrics"
	"github.com/binaryelements/becaller/internal/reception"
	"github.com/binaryelements/becaller/pkg/logging"
)

func main() {
	// Load .env in development; ignore absence in production
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting becaller voice gateway",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	api := apiclient.New(apiclient.Config{
		BaseURL: cfg.PrivateAPIURL,
		Timeout: cfg.PrivateAPITimeout,
		Logger:  logger,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	callMetrics := metrics.NewCallMetrics(reg)

	var live *livecalls.Store
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, live-call registry disabled", "error", err)
		} else {
			live = livecalls.NewStore(rdb)
			logger.Info("live-call registry enabled", "addr", cfg.RedisAddr)
		}
		cancel()
	}

	journal := reception.NewJournal(api, logger, callMetrics, cfg.PrivateAPITimeout)
	defer journal.Close()

	svc := reception.New(reception.Options{
		Config:  cfg,
		API:     api,
		Journal: journal,
		Live:    live,
		Metrics: callMetrics,
		Logger:  logger,
	})

	endpoint := jambonz.NewEndpoint(logger, cfg.KeepAliveInterval)
	svc.Register(endpoint)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	endpoint.Mount(r)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 75 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
