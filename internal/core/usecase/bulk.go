package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carebridge/screening-engine/internal/core/domain"
	"github.com/carebridge/screening-engine/internal/core/ports"
)

const (
	DefaultBulkWorkers    = 20
	DefaultPatientTimeout = 30 * time.Second
	DefaultRunTimeout     = 30 * time.Minute
)

type BulkConfig struct {
	Workers        int
	PatientTimeout time.Duration
	RunTimeout     time.Duration
}

func (c BulkConfig) normalize() BulkConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = DefaultBulkWorkers
	}
	if out.PatientTimeout <= 0 {
		out.PatientTimeout = DefaultPatientTimeout
	}
	if out.RunTimeout <= 0 {
		out.RunTimeout = DefaultRunTimeout
	}
	return out
}

// BulkOrchestrator runs the status determiner for a population of patients
// with bounded concurrency, per-patient timeouts and per-patient circuit
// breaking. Each patient's results are committed as one atomic unit; no
// failure of one patient may abort or roll back another.
type BulkOrchestrator struct {
	patients  ports.PatientProvider
	catalog   ports.DefinitionCatalog
	evaluator ports.StatusEvaluator
	sink      ports.ResultSink
	isolator  ports.FailureIsolator

	cfg    BulkConfig
	logger *slog.Logger

	// trips counts breaker openings during the current run. The isolator's
	// trip callback feeds it via OnBreakerTrip.
	trips atomic.Int64

	// runMu serializes bulk runs so the catalog snapshot stays read-only
	// for the duration of a pass.
	runMu sync.Mutex
}

func NewBulkOrchestrator(
	patients ports.PatientProvider,
	catalog ports.DefinitionCatalog,
	evaluator ports.StatusEvaluator,
	sink ports.ResultSink,
	isolator ports.FailureIsolator,
	cfg BulkConfig,
	logger *slog.Logger,
) *BulkOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BulkOrchestrator{
		patients:  patients,
		catalog:   catalog,
		evaluator: evaluator,
		sink:      sink,
		isolator:  isolator,
		cfg:       cfg.normalize(),
		logger:    logger,
	}
}

// SetIsolator wires the failure isolator after construction. The isolator's
// trip callback points back at the orchestrator, so the two are built in two
// steps at bootstrap.
func (o *BulkOrchestrator) SetIsolator(isolator ports.FailureIsolator) {
	o.isolator = isolator
}

// OnBreakerTrip is wired as the isolator's trip callback at bootstrap.
func (o *BulkOrchestrator) OnBreakerTrip(patientID string) {
	o.trips.Add(1)
	o.logger.Warn("patient_quarantined", "patient_id", patientID)
}

// RunForAllPatients drains the full patient population through the worker
// pool. Patients left unprocessed when the global timeout fires are reported
// as not-processed, not as failed.
func (o *BulkOrchestrator) RunForAllPatients(ctx context.Context, trigger string) (*domain.RunMetrics, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	start := time.Now()
	o.trips.Store(0)

	if err := o.catalog.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refresh definition catalog: %w", err)
	}
	definitions, err := o.catalog.ListActiveDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}
	patients, err := o.patients.ListPatients(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	var (
		processed atomic.Int64
		failed    atomic.Int64
		skipped   atomic.Int64
		updated   atomic.Int64
		linked    atomic.Int64
	)

	queue := make(chan domain.Patient)
	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for patient := range queue {
				outcome := o.runOne(runCtx, patient, definitions)
				switch {
				case outcome.skipped:
					skipped.Add(1)
				case outcome.err != nil:
					failed.Add(1)
					o.logger.Error("patient_pass_failed",
						"patient_id", patient.ID,
						"trigger", trigger,
						"error", outcome.err,
					)
				default:
					processed.Add(1)
					updated.Add(int64(outcome.updated))
					linked.Add(int64(outcome.linked))
				}
			}
		}()
	}

feed:
	for _, patient := range patients {
		select {
		case queue <- patient:
		case <-runCtx.Done():
			// Remaining patients are abandoned; committed work stands.
			break feed
		}
	}
	close(queue)
	wg.Wait()

	metrics := &domain.RunMetrics{
		Trigger:           trigger,
		Total:             len(patients),
		Processed:         int(processed.Load()),
		Failed:            int(failed.Load()),
		Skipped:           int(skipped.Load()),
		CircuitTrips:      int(o.trips.Load()),
		ScreeningsUpdated: int(updated.Load()),
		DocumentsLinked:   int(linked.Load()),
		Elapsed:           time.Since(start),
	}

	o.logger.Info("bulk_run_complete",
		"trigger", trigger,
		"total", metrics.Total,
		"processed", metrics.Processed,
		"failed", metrics.Failed,
		"skipped", metrics.Skipped,
		"circuit_trips", metrics.CircuitTrips,
		"screenings_updated", metrics.ScreeningsUpdated,
		"documents_linked", metrics.DocumentsLinked,
		"elapsed_ms", metrics.Elapsed.Milliseconds(),
	)
	return metrics, nil
}

// RunForPatient runs one targeted pass, bypassing the worker pool but keeping
// the per-patient timeout and atomic commit semantics.
func (o *BulkOrchestrator) RunForPatient(ctx context.Context, patientID string) ([]domain.ScreeningResult, error) {
	if err := o.catalog.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refresh definition catalog: %w", err)
	}
	definitions, err := o.catalog.ListActiveDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}
	patient, err := o.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient %s: %w", patientID, err)
	}

	passCtx, cancel := context.WithTimeout(ctx, o.cfg.PatientTimeout)
	defer cancel()

	results, err := o.evaluator.EvaluatePatient(passCtx, *patient, definitions)
	if err != nil {
		return nil, err
	}
	if err := o.sink.UpsertResults(passCtx, patientID, results); err != nil {
		return nil, fmt.Errorf("persist results for patient %s: %w", patientID, err)
	}
	return results, nil
}

type patientOutcome struct {
	skipped bool
	updated int
	linked  int
	err     error
}

// runOne wraps a single patient's pass with its timeout and breaker. Any
// error, including a timeout, records a breaker failure for that patient.
func (o *BulkOrchestrator) runOne(ctx context.Context, patient domain.Patient, definitions []domain.ScreeningDefinition) patientOutcome {
	var outcome patientOutcome

	err := o.isolator.Execute(patient.ID, func() error {
		passCtx, cancel := context.WithTimeout(ctx, o.cfg.PatientTimeout)
		defer cancel()

		results, err := o.evaluator.EvaluatePatient(passCtx, patient, definitions)
		if err != nil {
			return err
		}
		for _, result := range results {
			if err := result.Validate(); err != nil {
				return domain.WrapError(domain.ErrEvaluation, "validate result", err)
			}
		}
		if err := o.sink.UpsertResults(passCtx, patient.ID, results); err != nil {
			return fmt.Errorf("persist results: %w", err)
		}
		outcome.updated = len(results)
		for _, result := range results {
			outcome.linked += len(result.Links)
		}
		return nil
	})
	if err != nil {
		if o.isolator.IsQuarantined(err) {
			outcome.skipped = true
			return outcome
		}
		outcome.err = err
	}
	return outcome
}
