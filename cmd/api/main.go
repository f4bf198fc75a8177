// Package main implements the docqa API server.
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

	"github.com/joho/godotenv"

	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/mid"
)

func main() {
	configPath := flag.String("config", "docqa.yaml", "path to the YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	svc, cleanup, err := buildService(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      newHandler(svc, cfg, reg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Processing.Timeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port, "provider", cfg.Provider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func newHandler(svc Service, cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/documents", handleStatus(svc))
	mux.HandleFunc("POST /api/documents", handleProcess(svc, logger))
	mux.HandleFunc("DELETE /api/documents", handleClear(svc, logger))
	mux.HandleFunc("POST /api/search", handleSearch(svc, logger))
	mux.HandleFunc("POST /api/chat", handleChat(svc, logger))
	mux.Handle("GET /metrics", reg.Handler())

	return mid.Chain(mux,
		mid.RequestID(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("docqa-api"),
		mid.Metrics(reg), // after OTel, which clones the request
		mid.CORS(cfg.HTTP.CORSOrigin),
		mid.RateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
	)
}
