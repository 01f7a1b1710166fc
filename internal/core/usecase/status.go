package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/carebridge/screening-engine/internal/core/domain"
	"github.com/carebridge/screening-engine/internal/core/ports"
)

const DefaultDueSoonWindowDays = 30

// StatusDeterminer recomputes the lifecycle status of every screening
// definition for one patient. Status is derived from scratch on each pass;
// nothing is transitioned incrementally.
type StatusDeterminer struct {
	eligibility *EligibilityFilter
	matcher     *DocumentMatcher
	documents   ports.DocumentProvider

	dueSoonWindowDays int
	clock             func() time.Time
	logger            *slog.Logger
}

func NewStatusDeterminer(
	eligibility *EligibilityFilter,
	matcher *DocumentMatcher,
	documents ports.DocumentProvider,
	dueSoonWindowDays int,
	clock func() time.Time,
	logger *slog.Logger,
) *StatusDeterminer {
	if dueSoonWindowDays <= 0 {
		dueSoonWindowDays = DefaultDueSoonWindowDays
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusDeterminer{
		eligibility:       eligibility,
		matcher:           matcher,
		documents:         documents,
		dueSoonWindowDays: dueSoonWindowDays,
		clock:             clock,
		logger:            logger,
	}
}

// EvaluatePatient produces the result set for one patient against a catalog
// snapshot. Ineligible definitions produce no result row at all. The result
// order is deterministic, so re-running on identical state yields identical
// output.
func (d *StatusDeterminer) EvaluatePatient(ctx context.Context, patient domain.Patient, definitions []domain.ScreeningDefinition) ([]domain.ScreeningResult, error) {
	docs, err := d.documents.ListDocumentsForPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents for patient %s: %w", patient.ID, err)
	}

	ordered := make([]domain.ScreeningDefinition, len(definitions))
	copy(ordered, definitions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	results := make([]domain.ScreeningResult, 0, len(ordered))
	for _, def := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eligible, reason := d.checkEligibility(patient, def)
		if !eligible {
			d.logger.Debug("patient_ineligible",
				"patient_id", patient.ID,
				"definition_id", def.ID,
				"reason", reason,
			)
			continue
		}
		results = append(results, d.determine(patient, def, docs))
	}
	return results, nil
}

// checkEligibility never treats an evaluation failure as eligible.
func (d *StatusDeterminer) checkEligibility(patient domain.Patient, def domain.ScreeningDefinition) (eligible bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			eligible = false
			reason = "evaluation error"
			d.logger.Error("eligibility_panic",
				"patient_id", patient.ID,
				"definition_id", def.ID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	return d.eligibility.IsEligible(patient, def)
}

func (d *StatusDeterminer) determine(patient domain.Patient, def domain.ScreeningDefinition, docs []domain.DocumentRecord) domain.ScreeningResult {
	result := domain.ScreeningResult{
		PatientID:      patient.ID,
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
	}

	matched := d.matchDocuments(patient.ID, def, docs)
	today := truncateToDate(d.clock())

	if len(matched) == 0 {
		// No evidence means the screening is immediately due.
		result.Status = domain.StatusIncomplete
		result.DueDate = &today
		return result
	}

	// Newest evidence first; ID breaks date ties for deterministic output.
	sort.Slice(matched, func(i, j int) bool {
		di := truncateToDate(matched[i].doc.EffectiveDate())
		dj := truncateToDate(matched[j].doc.EffectiveDate())
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return matched[i].doc.ID < matched[j].doc.ID
	})

	for _, m := range matched {
		result.Links = append(result.Links, domain.DocumentLink{
			DocumentID: m.doc.ID,
			Confidence: m.match.Confidence,
			Source:     m.match.Source,
		})
	}

	lastCompleted := truncateToDate(matched[0].doc.EffectiveDate())
	result.LastCompleted = &lastCompleted
	result.DueDate = NextDueDate(&lastCompleted, def.Frequency)

	switch {
	case result.DueDate != nil && !result.DueDate.After(today):
		result.Status = domain.StatusDue
	case result.DueDate != nil && !result.DueDate.After(today.AddDate(0, 0, d.dueSoonWindowDays)):
		result.Status = domain.StatusDueSoon
	default:
		result.Status = domain.StatusComplete
	}

	// Structural guard for the evidence invariant. Step order makes this
	// unreachable, but a complete result must never go out without links.
	if result.Status == domain.StatusComplete && len(result.Links) == 0 {
		result.Status = domain.StatusIncomplete
		result.LastCompleted = nil
		result.DueDate = &today
	}
	return result
}

type scoredDocument struct {
	doc   domain.DocumentRecord
	match DocumentMatch
}

// matchDocuments runs the matcher over every document, isolating per-document
// failures: a document that blows up is skipped, not fatal.
func (d *StatusDeterminer) matchDocuments(patientID string, def domain.ScreeningDefinition, docs []domain.DocumentRecord) []scoredDocument {
	matched := make([]scoredDocument, 0, len(docs))
	for _, doc := range docs {
		match, err := d.matchOne(doc, def)
		if err != nil {
			d.logger.Warn("document_match_skipped",
				"patient_id", patientID,
				"definition_id", def.ID,
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}
		if match.IsMatch {
			matched = append(matched, scoredDocument{doc: doc, match: match})
		}
	}
	return matched
}

func (d *StatusDeterminer) matchOne(doc domain.DocumentRecord, def domain.ScreeningDefinition) (match DocumentMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("document matcher panic: %v", r)
		}
	}()
	return d.matcher.MatchDocumentToDefinition(doc, def), nil
}
