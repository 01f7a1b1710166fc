package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

// DefinitionCatalog serves screening definitions from an in-memory snapshot
// refreshed explicitly at run start. A bulk run therefore works off a single
// consistent catalog view instead of a hidden process-wide cache.
type DefinitionCatalog struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot []domain.ScreeningDefinition
	loaded   bool
}

func NewDefinitionCatalog(db *sql.DB, logger *slog.Logger) *DefinitionCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefinitionCatalog{db: db, logger: logger}
}

func (c *DefinitionCatalog) Refresh(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `
SELECT id, name, min_age, max_age, sex_restriction, trigger_conditions,
       frequency_count, frequency_unit,
       content_keywords, filename_keywords, type_label_keywords, active
FROM screening_definitions
ORDER BY id
`)
	if err != nil {
		return fmt.Errorf("query definitions: %w", err)
	}
	defer rows.Close()

	var snapshot []domain.ScreeningDefinition
	for rows.Next() {
		def, err := c.scanDefinition(rows)
		if err != nil {
			return err
		}
		snapshot = append(snapshot, def)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate definitions: %w", err)
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *DefinitionCatalog) ListDefinitions(ctx context.Context) ([]domain.ScreeningDefinition, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.ScreeningDefinition, len(c.snapshot))
	copy(out, c.snapshot)
	return out, nil
}

func (c *DefinitionCatalog) ListActiveDefinitions(ctx context.Context) ([]domain.ScreeningDefinition, error) {
	all, err := c.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]domain.ScreeningDefinition, 0, len(all))
	for _, def := range all {
		if def.Active {
			active = append(active, def)
		}
	}
	return active, nil
}

func (c *DefinitionCatalog) GetDefinition(ctx context.Context, id string) (*domain.ScreeningDefinition, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	for _, def := range c.snapshot {
		if def.ID == id {
			found := def
			c.mu.RUnlock()
			return &found, nil
		}
	}
	c.mu.RUnlock()

	// Not in the snapshot; the row may be newer than the last refresh.
	row := c.db.QueryRowContext(ctx, `
SELECT id, name, min_age, max_age, sex_restriction, trigger_conditions,
       frequency_count, frequency_unit,
       content_keywords, filename_keywords, type_label_keywords, active
FROM screening_definitions
WHERE id = $1
`, id)
	def, err := c.scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDefinitionNotFound, "get definition", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return &def, nil
}

// SetActive flips the active flag for every listed definition in one
// transaction, then reloads the snapshot.
func (c *DefinitionCatalog) SetActive(ctx context.Context, ids []string, active bool) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin set-active tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	affected := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
UPDATE screening_definitions
SET active = $2, updated_at = $3
WHERE id = $1
`, id, active, time.Now().UTC())
		if err != nil {
			return 0, fmt.Errorf("update definition %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected for %s: %w", id, err)
		}
		affected += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit set-active tx: %w", err)
	}

	if err := c.Refresh(ctx); err != nil {
		return affected, fmt.Errorf("refresh after set-active: %w", err)
	}
	return affected, nil
}

func (c *DefinitionCatalog) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *DefinitionCatalog) scanDefinition(row rowScanner) (domain.ScreeningDefinition, error) {
	var (
		def                                       domain.ScreeningDefinition
		minAge, maxAge                            sql.NullInt64
		triggersRaw, contentRaw, fileRaw, typeRaw []byte
		unit                                      string
	)
	err := row.Scan(
		&def.ID, &def.Name, &minAge, &maxAge, &def.SexRestriction, &triggersRaw,
		&def.Frequency.Count, &unit,
		&contentRaw, &fileRaw, &typeRaw, &def.Active,
	)
	if err != nil {
		return domain.ScreeningDefinition{}, err
	}

	if minAge.Valid {
		v := int(minAge.Int64)
		def.MinAge = &v
	}
	if maxAge.Valid {
		v := int(maxAge.Int64)
		def.MaxAge = &v
	}
	def.Frequency.Unit = domain.FrequencyUnit(strings.ToLower(strings.TrimSpace(unit)))

	def.TriggerConditions = c.decodeList(def.ID, "trigger_conditions", triggersRaw)
	def.Keywords = domain.KeywordConfig{
		Content:   c.decodeList(def.ID, "content_keywords", contentRaw),
		Filename:  c.decodeList(def.ID, "filename_keywords", fileRaw),
		TypeLabel: c.decodeList(def.ID, "type_label_keywords", typeRaw),
	}
	return def, nil
}

// decodeList normalizes a stored keyword or trigger list. A malformed column
// is logged and treated as empty so one bad definition cannot fail a run.
func (c *DefinitionCatalog) decodeList(definitionID, column string, raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		c.logger.Warn("definition_list_malformed",
			"definition_id", definitionID,
			"column", column,
			"error", err,
		)
		return nil
	}

	out := values[:0]
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
