package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carebridge/screening-engine/internal/core/domain"
	"github.com/carebridge/screening-engine/internal/core/ports"
)

// baseNameSeparators, tried in order. The text before the first occurring
// separator is the base name under the variant naming convention, so
// "A1c - Diabetes Management" and "A1c" share the base name "A1c".
var baseNameSeparators = []string{" - ", " (", " for ", " : "}

// BaseName derives the variant-group base name from a display name. A name
// without any separator is its own base name.
func BaseName(displayName string) string {
	for _, sep := range baseNameSeparators {
		if idx := strings.Index(displayName, sep); idx >= 0 {
			return strings.TrimSpace(displayName[:idx])
		}
	}
	return strings.TrimSpace(displayName)
}

// GroupByBaseName buckets definitions into variant groups.
func GroupByBaseName(definitions []domain.ScreeningDefinition) map[string][]domain.ScreeningDefinition {
	groups := make(map[string][]domain.ScreeningDefinition)
	for _, def := range definitions {
		base := BaseName(def.Name)
		groups[base] = append(groups[base], def)
	}
	return groups
}

// VariantConsolidator keeps name-sharing screening definitions behaviorally
// synchronized: flipping one definition's active flag flips the whole group,
// deactivation deletes the group's results, activation schedules a fresh
// determination pass.
type VariantConsolidator struct {
	catalog ports.DefinitionCatalog
	results ports.ResultSink
	queue   ports.TriggerQueue
	logger  *slog.Logger
}

func NewVariantConsolidator(
	catalog ports.DefinitionCatalog,
	results ports.ResultSink,
	queue ports.TriggerQueue,
	logger *slog.Logger,
) *VariantConsolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &VariantConsolidator{
		catalog: catalog,
		results: results,
		queue:   queue,
		logger:  logger,
	}
}

// SetActive updates every definition sharing the target's base name to the
// same active flag and returns how many definitions were affected.
func (c *VariantConsolidator) SetActive(ctx context.Context, definitionID string, active bool) (int, error) {
	def, err := c.catalog.GetDefinition(ctx, definitionID)
	if err != nil {
		return 0, fmt.Errorf("load definition %s: %w", definitionID, err)
	}

	all, err := c.catalog.ListDefinitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list definitions: %w", err)
	}

	base := BaseName(def.Name)
	members := GroupByBaseName(all)[base]
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.ID)
	}

	affected, err := c.catalog.SetActive(ctx, ids, active)
	if err != nil {
		return 0, fmt.Errorf("set active=%t for group %q: %w", active, base, err)
	}

	c.logger.Info("variant_group_flag_changed",
		"base_name", base,
		"active", active,
		"affected", affected,
	)

	if active {
		return affected, c.scheduleRun(ctx, definitionID)
	}
	return affected, c.cleanupResults(ctx, base, ids)
}

// cleanupResults removes all materialized results (and their document links)
// for every definition in a deactivated group.
func (c *VariantConsolidator) cleanupResults(ctx context.Context, base string, ids []string) error {
	for _, id := range ids {
		deleted, err := c.results.DeleteResultsForDefinition(ctx, id)
		if err != nil {
			return fmt.Errorf("delete results for definition %s: %w", id, err)
		}
		c.logger.Info("screening_results_deleted",
			"base_name", base,
			"definition_id", id,
			"deleted", deleted,
		)
	}
	return nil
}

func (c *VariantConsolidator) scheduleRun(ctx context.Context, definitionID string) error {
	event := domain.TriggerEvent{
		Kind:         domain.TriggerDefinitionActivated,
		DefinitionID: definitionID,
	}
	if err := c.queue.PublishTrigger(ctx, event); err != nil {
		return fmt.Errorf("schedule determination run: %w", err)
	}
	return nil
}
