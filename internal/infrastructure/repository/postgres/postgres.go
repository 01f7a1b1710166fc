package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the screening tables if absent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026041702)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS patients (
	id TEXT PRIMARY KEY,
	date_of_birth DATE NOT NULL,
	sex TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS patient_conditions (
	patient_id TEXT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	position INT NOT NULL,
	name TEXT NOT NULL,
	code TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (patient_id, position)
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	content TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL,
	type_label TEXT NOT NULL DEFAULT '',
	event_date DATE,
	ingested_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_patient ON documents(patient_id);

CREATE TABLE IF NOT EXISTS screening_definitions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	min_age INT,
	max_age INT,
	sex_restriction TEXT NOT NULL DEFAULT '',
	trigger_conditions JSONB NOT NULL DEFAULT '[]'::jsonb,
	frequency_count INT NOT NULL DEFAULT 0,
	frequency_unit TEXT NOT NULL DEFAULT '',
	content_keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	filename_keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	type_label_keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS screening_results (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	definition_id TEXT NOT NULL,
	definition_name TEXT NOT NULL,
	status TEXT NOT NULL,
	due_date DATE,
	last_completed DATE,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (patient_id, definition_id)
);

CREATE INDEX IF NOT EXISTS idx_screening_results_definition ON screening_results(definition_id);

CREATE TABLE IF NOT EXISTS screening_result_links (
	result_id TEXT NOT NULL REFERENCES screening_results(id) ON DELETE CASCADE,
	position INT NOT NULL,
	document_id TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL,
	PRIMARY KEY (result_id, position)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
