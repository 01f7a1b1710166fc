package ports

import (
	"context"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

// PatientProvider reads patient demographics and active conditions.
type PatientProvider interface {
	GetPatient(ctx context.Context, id string) (*domain.Patient, error)
	ListPatients(ctx context.Context, limit int) ([]domain.Patient, error)
}

// DocumentProvider reads the documents owned by a patient.
type DocumentProvider interface {
	ListDocumentsForPatient(ctx context.Context, patientID string) ([]domain.DocumentRecord, error)
}

// DefinitionCatalog serves the screening-definition catalog. Refresh loads a
// fresh snapshot; the list operations serve from that snapshot so a bulk run
// works off a single consistent view of the catalog.
type DefinitionCatalog interface {
	Refresh(ctx context.Context) error
	ListDefinitions(ctx context.Context) ([]domain.ScreeningDefinition, error)
	ListActiveDefinitions(ctx context.Context) ([]domain.ScreeningDefinition, error)
	GetDefinition(ctx context.Context, id string) (*domain.ScreeningDefinition, error)
	SetActive(ctx context.Context, ids []string, active bool) (int, error)
}

// ResultSink persists computed screening results. UpsertResults commits all
// of one patient's results and document links as a single atomic unit.
type ResultSink interface {
	UpsertResults(ctx context.Context, patientID string, results []domain.ScreeningResult) error
	DeleteResultsForDefinition(ctx context.Context, definitionID string) (int64, error)
	ListResultsForPatient(ctx context.Context, patientID string) ([]domain.ScreeningResult, error)
}

// FailureIsolator wraps per-patient work with circuit-breaker failure
// isolation. A quarantined key is rejected without running fn.
type FailureIsolator interface {
	Execute(key string, fn func() error) error
	IsQuarantined(err error) bool
}

// TriggerQueue publishes and consumes determination-run trigger events.
type TriggerQueue interface {
	PublishTrigger(ctx context.Context, event domain.TriggerEvent) error
	SubscribeTriggers(ctx context.Context, handler func(context.Context, domain.TriggerEvent) error) error
}
