package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-gateway/internal/gateway"
	"media-gateway/internal/platform/config"
	"media-gateway/internal/platform/logger"
	"media-gateway/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	baseURL := config.GetEnv("PUBLIC_BASE_URL", "http://localhost:"+port)
	resolverURL := config.GetEnv("RESOLVER_URL", "http://localhost:9090")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	poolCfg := gateway.DefaultPoolConfig()
	poolCfg.MaxConnsPerHost = config.GetEnvInt("MAX_CONNS_PER_HOST", poolCfg.MaxConnsPerHost)
	poolCfg.GlobalMaxConns = config.GetEnvInt("GLOBAL_MAX_CONNS", poolCfg.GlobalMaxConns)
	poolCfg.AcquireTimeout = config.GetEnvDuration("POOL_ACQUIRE_TIMEOUT", poolCfg.AcquireTimeout)

	features := gateway.Features{
		Downloads:   config.GetEnvBool("ENABLE_DOWNLOADS", true),
		DASH:        config.GetEnvBool("ENABLE_DASH", true),
		Livestreams: config.GetEnvBool("ENABLE_LIVESTREAMS", true),
	}

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	pool := gateway.NewConnectionPool(poolCfg)
	defer pool.Close()

	// Playback streams must never be cut off by a client timeout; manifest
	// and caption fetches are small and bounded.
	streamOrigin := gateway.NewOriginClient(0)
	manifestOrigin := gateway.NewOriginClient(config.GetEnvDuration("MANIFEST_TIMEOUT", 30*time.Second))

	resolver := gateway.NewHTTPResolver(resolverURL)
	proxy := gateway.NewChunkedProxy(streamOrigin, pool, logger.Component(log, "proxy"), met)
	h := gateway.NewHandler(resolver, proxy, manifestOrigin, features, baseURL,
		logger.Component(log, "handler"), met)

	r := chi.NewRouter()
	r.Use(logger.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetPoolConnections(pool.InFlight()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	h.Register(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"public_base_url", baseURL,
		"resolver_url", resolverURL,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
