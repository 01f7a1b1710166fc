package ports

import (
	"context"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

// StatusEvaluator computes the full screening-result set for one patient
// against a catalog snapshot.
type StatusEvaluator interface {
	EvaluatePatient(ctx context.Context, patient domain.Patient, definitions []domain.ScreeningDefinition) ([]domain.ScreeningResult, error)
}

// BulkRunner drives determination passes across the patient population.
type BulkRunner interface {
	RunForAllPatients(ctx context.Context, trigger string) (*domain.RunMetrics, error)
	RunForPatient(ctx context.Context, patientID string) ([]domain.ScreeningResult, error)
}

// DefinitionLifecycle manages the active flag of a screening definition and
// its name-sharing variants as one logical unit.
type DefinitionLifecycle interface {
	SetActive(ctx context.Context, definitionID string, active bool) (int, error)
}
