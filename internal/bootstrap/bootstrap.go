package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carebridge/screening-engine/internal/config"
	"github.com/carebridge/screening-engine/internal/core/ports"
	"github.com/carebridge/screening-engine/internal/core/usecase"
	"github.com/carebridge/screening-engine/internal/infrastructure/queue/nats"
	"github.com/carebridge/screening-engine/internal/infrastructure/repository/postgres"
	"github.com/carebridge/screening-engine/internal/infrastructure/resilience"
)

// App wires the screening engine's collaborators for both binaries.
type App struct {
	Config config.Config

	Queue        ports.TriggerQueue
	Catalog      ports.DefinitionCatalog
	Results      ports.ResultSink
	Evaluator    ports.StatusEvaluator
	Orchestrator *usecase.BulkOrchestrator
	Consolidator *usecase.VariantConsolidator

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	patients := postgres.NewPatientRepository(db)
	documents := postgres.NewDocumentRepository(db)
	catalog := postgres.NewDefinitionCatalog(db, logger)
	results := postgres.NewResultRepository(db)

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init trigger queue: %w", err)
	}

	matcher := usecase.NewDocumentMatcher(usecase.NewKeywordMatcher(), cfg.MatchThreshold)
	eligibility := usecase.NewEligibilityFilter(nil)
	determiner := usecase.NewStatusDeterminer(
		eligibility,
		matcher,
		documents,
		cfg.DueSoonWindowDays,
		nil,
		logger,
	)

	orchestrator := usecase.NewBulkOrchestrator(
		patients,
		catalog,
		determiner,
		results,
		nil, // isolator wired below, its trip callback needs the orchestrator
		usecase.BulkConfig{
			Workers:        cfg.BulkWorkers,
			PatientTimeout: time.Duration(cfg.PatientTimeoutSeconds) * time.Second,
			RunTimeout:     time.Duration(cfg.RunTimeoutMinutes) * time.Minute,
		},
		logger,
	)
	breakers := resilience.NewBreakers(resilience.Config{
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		CoolDown:         time.Duration(cfg.BreakerCooldownMinutes) * time.Minute,
	}, orchestrator.OnBreakerTrip)
	orchestrator.SetIsolator(breakers)

	consolidator := usecase.NewVariantConsolidator(catalog, results, queue, logger)

	return &App{
		Config: cfg,

		Queue:        queue,
		Catalog:      catalog,
		Results:      results,
		Evaluator:    determiner,
		Orchestrator: orchestrator,
		Consolidator: consolidator,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
