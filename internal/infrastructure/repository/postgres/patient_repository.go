package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

type PatientRepository struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) GetPatient(ctx context.Context, id string) (*domain.Patient, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, date_of_birth, sex
FROM patients
WHERE id = $1
`, id)

	var patient domain.Patient
	if err := row.Scan(&patient.ID, &patient.DateOfBirth, &patient.Sex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPatientNotFound, "get patient", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}

	conditions, err := r.conditionsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	patient.Conditions = conditions[id]
	return &patient, nil
}

func (r *PatientRepository) ListPatients(ctx context.Context, limit int) ([]domain.Patient, error) {
	query := `SELECT id, date_of_birth, sex FROM patients ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var patients []domain.Patient
	var ids []string
	for rows.Next() {
		var patient domain.Patient
		if err := rows.Scan(&patient.ID, &patient.DateOfBirth, &patient.Sex); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, patient)
		ids = append(ids, patient.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}

	conditions, err := r.conditionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range patients {
		patients[i].Conditions = conditions[patients[i].ID]
	}
	return patients, nil
}

// conditionsFor loads active conditions grouped by patient, preserving the
// stored ordering.
func (r *PatientRepository) conditionsFor(ctx context.Context, patientIDs []string) (map[string][]domain.Condition, error) {
	out := make(map[string][]domain.Condition, len(patientIDs))
	if len(patientIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT patient_id, name, code
FROM patient_conditions
WHERE patient_id = ANY($1)
ORDER BY patient_id, position
`, patientIDs)
	if err != nil {
		return nil, fmt.Errorf("query patient conditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var patientID string
		var condition domain.Condition
		if err := rows.Scan(&patientID, &condition.Name, &condition.Code); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		out[patientID] = append(out[patientID], condition)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conditions: %w", err)
	}
	return out, nil
}
