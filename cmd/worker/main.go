package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebridge/screening-engine/internal/bootstrap"
	"github.com/carebridge/screening-engine/internal/config"
	"github.com/carebridge/screening-engine/internal/core/domain"
	"github.com/carebridge/screening-engine/internal/observability/logging"
	"github.com/carebridge/screening-engine/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("screening-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	runMetrics := metrics.NewRunMetrics("screening-worker")
	go serveMetrics(ctx, cfg.WorkerMetricsPort, runMetrics, logger)

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeTriggers(ctx, func(handlerCtx context.Context, event domain.TriggerEvent) error {
		return handleTrigger(handlerCtx, app, runMetrics, event)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// handleTrigger maps a trigger event onto a targeted or full determination
// pass. Document triggers touch one patient; catalog triggers re-run the
// population because eligibility and matching may change for anyone.
func handleTrigger(ctx context.Context, app *bootstrap.App, runMetrics *metrics.RunMetrics, event domain.TriggerEvent) error {
	switch event.Kind {
	case domain.TriggerDocumentAdded, domain.TriggerDocumentRemoved:
		_, err := app.Orchestrator.RunForPatient(ctx, event.PatientID)
		return err
	case domain.TriggerDefinitionDeactivated:
		// Cleanup already ran synchronously in the consolidator.
		return nil
	default:
		runMetrics.StartRun()
		start := time.Now()
		summary, err := app.Orchestrator.RunForAllPatients(ctx, string(event.Kind))
		runMetrics.FinishRun("screening-worker", summary, time.Since(start), err)
		return err
	}
}

func serveMetrics(ctx context.Context, port string, runMetrics *metrics.RunMetrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", runMetrics.Handler())

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics_listening", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics_server_failed", "error", err)
	}
}
