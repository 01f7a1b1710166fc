package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

// ResultRepository persists screening results. One patient's result set is
// replaced wholesale inside a single transaction, so a mid-pass failure never
// leaves that patient half-updated and never touches other patients.
type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) UpsertResults(ctx context.Context, patientID string, results []domain.ScreeningResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Recompute-not-append: drop the previous pass, links cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM screening_results WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("clear previous results: %w", err)
	}

	now := time.Now().UTC()
	for _, result := range results {
		if err := result.Validate(); err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "upsert result", err)
		}

		resultID := uuid.NewString()
		_, err := tx.ExecContext(ctx, `
INSERT INTO screening_results (
	id, patient_id, definition_id, definition_name, status, due_date, last_completed, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
			resultID, patientID, result.DefinitionID, result.DefinitionName,
			string(result.Status), result.DueDate, result.LastCompleted, now,
		)
		if err != nil {
			return fmt.Errorf("insert result for definition %s: %w", result.DefinitionID, err)
		}

		for position, link := range result.Links {
			_, err := tx.ExecContext(ctx, `
INSERT INTO screening_result_links (result_id, position, document_id, confidence, source)
VALUES ($1,$2,$3,$4,$5)
`, resultID, position, link.DocumentID, link.Confidence, link.Source)
			if err != nil {
				return fmt.Errorf("insert link for document %s: %w", link.DocumentID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// DeleteResultsForDefinition removes every result (and, by cascade, every
// document link) belonging to a definition. Used by consolidation cleanup
// when a variant group is deactivated.
func (r *ResultRepository) DeleteResultsForDefinition(ctx context.Context, definitionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM screening_results WHERE definition_id = $1`, definitionID)
	if err != nil {
		return 0, fmt.Errorf("delete results for definition %s: %w", definitionID, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

func (r *ResultRepository) ListResultsForPatient(ctx context.Context, patientID string) ([]domain.ScreeningResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, definition_id, definition_name, status, due_date, last_completed
FROM screening_results
WHERE patient_id = $1
ORDER BY definition_id
`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.ScreeningResult
	var resultIDs []string
	byID := make(map[string]int)
	for rows.Next() {
		var (
			resultID      string
			result        domain.ScreeningResult
			status        string
			dueDate       sql.NullTime
			lastCompleted sql.NullTime
		)
		if err := rows.Scan(&resultID, &result.DefinitionID, &result.DefinitionName, &status, &dueDate, &lastCompleted); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		result.PatientID = patientID
		result.Status = domain.ScreeningStatus(status)
		if dueDate.Valid {
			t := dueDate.Time
			result.DueDate = &t
		}
		if lastCompleted.Valid {
			t := lastCompleted.Time
			result.LastCompleted = &t
		}
		byID[resultID] = len(results)
		results = append(results, result)
		resultIDs = append(resultIDs, resultID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	if len(results) == 0 {
		return results, nil
	}

	linkRows, err := r.db.QueryContext(ctx, `
SELECT result_id, document_id, confidence, source
FROM screening_result_links
WHERE result_id = ANY($1)
ORDER BY result_id, position
`, resultIDs)
	if err != nil {
		return nil, fmt.Errorf("query result links: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var resultID string
		var link domain.DocumentLink
		if err := linkRows.Scan(&resultID, &link.DocumentID, &link.Confidence, &link.Source); err != nil {
			return nil, fmt.Errorf("scan result link: %w", err)
		}
		if idx, ok := byID[resultID]; ok {
			results[idx].Links = append(results[idx].Links, link)
		}
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result links: %w", err)
	}
	return results, nil
}
