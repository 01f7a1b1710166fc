package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/carebridge/screening-engine/internal/adapters/http"
	"github.com/carebridge/screening-engine/internal/bootstrap"
	"github.com/carebridge/screening-engine/internal/config"
	"github.com/carebridge/screening-engine/internal/observability/logging"
	"github.com/carebridge/screening-engine/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("screening-api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(app.Consolidator, app.Catalog, app.Results, app.Queue)
	httpMetrics := metrics.NewHTTPServerMetrics("screening-api")

	handler := httpMetrics.Middleware("screening-api", router.Handler())
	handler = httpadapter.Chain(handler, cfg.APIRateLimitRPS, cfg.APIRateLimitBurst, cfg.APIMaxConcurrent)

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listening", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
