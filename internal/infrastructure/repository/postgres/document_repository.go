package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) ListDocumentsForPatient(ctx context.Context, patientID string) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, patient_id, content, filename, type_label, event_date, ingested_at
FROM documents
WHERE patient_id = $1
ORDER BY ingested_at DESC, id
`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentRecord
	for rows.Next() {
		var doc domain.DocumentRecord
		var eventDate sql.NullTime
		if err := rows.Scan(&doc.ID, &doc.PatientID, &doc.Content, &doc.Filename, &doc.TypeLabel, &eventDate, &doc.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if eventDate.Valid {
			t := eventDate.Time
			doc.EventDate = &t
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
