package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

type fakePatientProvider struct {
	patients []domain.Patient
}

func (f *fakePatientProvider) GetPatient(_ context.Context, id string) (*domain.Patient, error) {
	for i := range f.patients {
		if f.patients[i].ID == id {
			p := f.patients[i]
			return &p, nil
		}
	}
	return nil, domain.ErrPatientNotFound
}

func (f *fakePatientProvider) ListPatients(context.Context, int) ([]domain.Patient, error) {
	return f.patients, nil
}

type fakeEvaluator struct {
	evaluate func(ctx context.Context, patient domain.Patient) ([]domain.ScreeningResult, error)
}

func (f *fakeEvaluator) EvaluatePatient(ctx context.Context, patient domain.Patient, _ []domain.ScreeningDefinition) ([]domain.ScreeningResult, error) {
	return f.evaluate(ctx, patient)
}

type syncResultSink struct {
	mu      sync.Mutex
	upserts map[string][]domain.ScreeningResult
	err     error
}

func newSyncResultSink() *syncResultSink {
	return &syncResultSink{upserts: make(map[string][]domain.ScreeningResult)}
}

func (s *syncResultSink) UpsertResults(_ context.Context, patientID string, results []domain.ScreeningResult) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts[patientID] = results
	return nil
}

func (s *syncResultSink) DeleteResultsForDefinition(context.Context, string) (int64, error) {
	return 0, nil
}

func (s *syncResultSink) ListResultsForPatient(_ context.Context, patientID string) ([]domain.ScreeningResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts[patientID], nil
}

func (s *syncResultSink) committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

var errKeyQuarantined = errors.New("key quarantined")

// fakeIsolator mimics consecutive-failure quarantine without real breakers.
type fakeIsolator struct {
	mu          sync.Mutex
	threshold   int
	failures    map[string]int
	quarantined map[string]bool
	onTrip      func(key string)
}

func newFakeIsolator(threshold int, onTrip func(string)) *fakeIsolator {
	if onTrip == nil {
		onTrip = func(string) {}
	}
	return &fakeIsolator{
		threshold:   threshold,
		failures:    make(map[string]int),
		quarantined: make(map[string]bool),
		onTrip:      onTrip,
	}
}

func (f *fakeIsolator) Execute(key string, fn func() error) error {
	f.mu.Lock()
	if f.quarantined[key] {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", errKeyQuarantined, key)
	}
	f.mu.Unlock()

	err := fn()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.failures[key] = 0
		return nil
	}
	f.failures[key]++
	if f.threshold > 0 && f.failures[key] >= f.threshold && !f.quarantined[key] {
		f.quarantined[key] = true
		f.onTrip(key)
	}
	return err
}

func (f *fakeIsolator) IsQuarantined(err error) bool {
	return errors.Is(err, errKeyQuarantined)
}

func somePatients(n int) []domain.Patient {
	patients := make([]domain.Patient, 0, n)
	for i := 0; i < n; i++ {
		patients = append(patients, domain.Patient{
			ID:          fmt.Sprintf("p%d", i),
			DateOfBirth: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return patients
}

func okResults(patientID string) []domain.ScreeningResult {
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return []domain.ScreeningResult{{
		PatientID:      patientID,
		DefinitionID:   "def-1",
		DefinitionName: "Mammogram",
		Status:         domain.StatusComplete,
		DueDate:        &due,
		Links:          []domain.DocumentLink{{DocumentID: "doc-1", Confidence: 0.7, Source: "content"}},
	}}
}

func newTestOrchestrator(patients *fakePatientProvider, evaluator *fakeEvaluator, sink *syncResultSink, isolator *fakeIsolator, cfg BulkConfig) *BulkOrchestrator {
	catalog := &fakeCatalog{definitions: []domain.ScreeningDefinition{
		{ID: "def-1", Name: "Mammogram", Active: true},
	}}
	return NewBulkOrchestrator(patients, catalog, evaluator, sink, isolator, cfg, quietLogger())
}

func TestRunForAllPatientsProcessesEveryPatient(t *testing.T) {
	patients := &fakePatientProvider{patients: somePatients(25)}
	evaluator := &fakeEvaluator{evaluate: func(_ context.Context, p domain.Patient) ([]domain.ScreeningResult, error) {
		return okResults(p.ID), nil
	}}
	sink := newSyncResultSink()
	o := newTestOrchestrator(patients, evaluator, sink, newFakeIsolator(3, nil), BulkConfig{Workers: 5})

	metrics, err := o.RunForAllPatients(context.Background(), string(domain.TriggerFullRun))
	if err != nil {
		t.Fatalf("RunForAllPatients: %v", err)
	}
	if metrics.Total != 25 || metrics.Processed != 25 || metrics.Failed != 0 || metrics.Skipped != 0 {
		t.Fatalf("metrics = %+v", metrics)
	}
	if metrics.ScreeningsUpdated != 25 || metrics.DocumentsLinked != 25 {
		t.Fatalf("update counters = %+v", metrics)
	}
	if sink.committed() != 25 {
		t.Fatalf("committed %d patients, want 25", sink.committed())
	}
}

func TestRunForAllPatientsIsolatesSinglePatientFailure(t *testing.T) {
	patients := &fakePatientProvider{patients: somePatients(10)}
	evaluator := &fakeEvaluator{evaluate: func(_ context.Context, p domain.Patient) ([]domain.ScreeningResult, error) {
		if p.ID == "p7" {
			return nil, errors.New("malformed document payload")
		}
		return okResults(p.ID), nil
	}}
	sink := newSyncResultSink()
	o := newTestOrchestrator(patients, evaluator, sink, newFakeIsolator(3, nil), BulkConfig{Workers: 4})

	metrics, err := o.RunForAllPatients(context.Background(), string(domain.TriggerFullRun))
	if err != nil {
		t.Fatalf("RunForAllPatients: %v", err)
	}
	if metrics.Processed != 9 || metrics.Failed != 1 {
		t.Fatalf("metrics = %+v, want 9 processed / 1 failed", metrics)
	}
	if _, ok := sink.upserts["p7"]; ok {
		t.Fatalf("failed patient must not have committed results")
	}
	if sink.committed() != 9 {
		t.Fatalf("committed %d patients, want 9", sink.committed())
	}
}

func TestRunForAllPatientsQuarantinesAfterRepeatedFailures(t *testing.T) {
	patients := &fakePatientProvider{patients: somePatients(10)}
	evaluator := &fakeEvaluator{evaluate: func(_ context.Context, p domain.Patient) ([]domain.ScreeningResult, error) {
		if p.ID == "p7" {
			return nil, errors.New("persistent failure")
		}
		return okResults(p.ID), nil
	}}
	sink := newSyncResultSink()

	catalog := &fakeCatalog{definitions: []domain.ScreeningDefinition{{ID: "def-1", Name: "Mammogram", Active: true}}}
	o := NewBulkOrchestrator(patients, catalog, evaluator, sink, nil, BulkConfig{Workers: 2}, quietLogger())
	o.SetIsolator(newFakeIsolator(3, o.OnBreakerTrip))

	ctx := context.Background()
	for run := 1; run <= 2; run++ {
		metrics, err := o.RunForAllPatients(ctx, string(domain.TriggerFullRun))
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if metrics.Failed != 1 || metrics.Skipped != 0 || metrics.CircuitTrips != 0 {
			t.Fatalf("run %d metrics = %+v", run, metrics)
		}
	}

	// Third consecutive failure trips the breaker during this run.
	metrics, err := o.RunForAllPatients(ctx, string(domain.TriggerFullRun))
	if err != nil {
		t.Fatalf("tripping run: %v", err)
	}
	if metrics.Failed != 1 || metrics.CircuitTrips != 1 {
		t.Fatalf("tripping run metrics = %+v, want 1 failed / 1 trip", metrics)
	}

	// The quarantined patient is skipped, everyone else still runs.
	metrics, err = o.RunForAllPatients(ctx, string(domain.TriggerFullRun))
	if err != nil {
		t.Fatalf("post-trip run: %v", err)
	}
	if metrics.Skipped != 1 || metrics.Failed != 0 || metrics.Processed != 9 {
		t.Fatalf("post-trip metrics = %+v, want 1 skipped / 9 processed", metrics)
	}
}

func TestRunForAllPatientsCountsTimeoutAsFailure(t *testing.T) {
	patients := &fakePatientProvider{patients: somePatients(3)}
	evaluator := &fakeEvaluator{evaluate: func(ctx context.Context, p domain.Patient) ([]domain.ScreeningResult, error) {
		if p.ID == "p1" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return okResults(p.ID), nil
	}}
	sink := newSyncResultSink()
	o := newTestOrchestrator(patients, evaluator, sink, newFakeIsolator(3, nil), BulkConfig{
		Workers:        3,
		PatientTimeout: 20 * time.Millisecond,
	})

	metrics, err := o.RunForAllPatients(context.Background(), string(domain.TriggerFullRun))
	if err != nil {
		t.Fatalf("RunForAllPatients: %v", err)
	}
	if metrics.Processed != 2 || metrics.Failed != 1 {
		t.Fatalf("metrics = %+v, want 2 processed / 1 failed", metrics)
	}
}

func TestRunForAllPatientsRejectsInvalidResults(t *testing.T) {
	patients := &fakePatientProvider{patients: somePatients(1)}
	evaluator := &fakeEvaluator{evaluate: func(_ context.Context, p domain.Patient) ([]domain.ScreeningResult, error) {
		return []domain.ScreeningResult{{
			PatientID:    p.ID,
			DefinitionID: "def-1",
			Status:       domain.StatusComplete, // no links
		}}, nil
	}}
	sink := newSyncResultSink()
	o := newTestOrchestrator(patients, evaluator, sink, newFakeIsolator(3, nil), BulkConfig{Workers: 1})

	metrics, err := o.RunForAllPatients(context.Background(), string(domain.TriggerFullRun))
	if err != nil {
		t.Fatalf("RunForAllPatients: %v", err)
	}
	if metrics.Failed != 1 {
		t.Fatalf("metrics = %+v, want the invalid result counted as failed", metrics)
	}
	if sink.committed() != 0 {
		t.Fatalf("invalid results must not be committed")
	}
}

func TestRunForAllPatientsCommitFailureDoesNotAbortRun(t *testing.T) {
	patients := &fakePatientProvider{patients: somePatients(4)}
	evaluator := &fakeEvaluator{evaluate: func(_ context.Context, p domain.Patient) ([]domain.ScreeningResult, error) {
		return okResults(p.ID), nil
	}}
	sink := newSyncResultSink()
	sink.err = errors.New("database unavailable")
	o := newTestOrchestrator(patients, evaluator, sink, newFakeIsolator(10, nil), BulkConfig{Workers: 2})

	metrics, err := o.RunForAllPatients(context.Background(), string(domain.TriggerFullRun))
	if err != nil {
		t.Fatalf("RunForAllPatients: %v", err)
	}
	if metrics.Failed != 4 || metrics.Processed != 0 {
		t.Fatalf("metrics = %+v, want every commit failure isolated per patient", metrics)
	}
}

func TestRunForPatientTargetedPass(t *testing.T) {
	patients := &fakePatientProvider{patients: somePatients(3)}
	evaluator := &fakeEvaluator{evaluate: func(_ context.Context, p domain.Patient) ([]domain.ScreeningResult, error) {
		return okResults(p.ID), nil
	}}
	sink := newSyncResultSink()
	o := newTestOrchestrator(patients, evaluator, sink, newFakeIsolator(3, nil), BulkConfig{})

	results, err := o.RunForPatient(context.Background(), "p2")
	if err != nil {
		t.Fatalf("RunForPatient: %v", err)
	}
	if len(results) != 1 || results[0].PatientID != "p2" {
		t.Fatalf("results = %+v", results)
	}
	if sink.committed() != 1 {
		t.Fatalf("targeted pass must commit exactly one patient")
	}

	if _, err := o.RunForPatient(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown patient")
	}
}
