package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/scripture-rag/internal/adapters/http"
	"github.com/kirillkom/scripture-rag/internal/bootstrap"
	"github.com/kirillkom/scripture-rag/internal/config"
	"github.com/kirillkom/scripture-rag/internal/infrastructure/cache"
	"github.com/kirillkom/scripture-rag/internal/observability/logging"
	"github.com/kirillkom/scripture-rag/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Observers{
		Retrieval: apiMetrics,
		Guard:     apiMetrics,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	checks := make([]httpadapter.HealthCheck, 0, len(app.Dependencies))
	for _, dep := range app.Dependencies {
		checks = append(checks, httpadapter.HealthCheck{Name: dep.Name, Checker: dep.Checker})
	}

	router := httpadapter.NewRouter(cfg, app.IngestUC, app.Answerer, app.Retriever, app.IngestUC).
		WithAnswerCache(cache.NewAnswerCache(cfg.AnswerCacheTTL, cfg.AnswerCacheMaxItems)).
		WithMetrics(apiMetrics).
		WithHealthChecks(checks...)

	server := &http.Server{
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		slog.Error("api_listen_failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		slog.Info("api_listening",
			"port", cfg.APIPort,
			"passage_store", cfg.PassageStore,
			"embed_provider", cfg.EmbedProvider,
			"gen_provider", cfg.GenProvider,
			"max_connections", cfg.APIMaxConnections,
			"demo_mode", cfg.DemoMode,
		)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
