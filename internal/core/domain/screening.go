package domain

import (
	"fmt"
	"time"
)

type FrequencyUnit string

const (
	UnitDays   FrequencyUnit = "days"
	UnitWeeks  FrequencyUnit = "weeks"
	UnitMonths FrequencyUnit = "months"
	UnitYears  FrequencyUnit = "years"
)

// Frequency describes how often a screening repeats.
type Frequency struct {
	Count int           `json:"count"`
	Unit  FrequencyUnit `json:"unit"`
}

func (f Frequency) Valid() bool {
	if f.Count <= 0 {
		return false
	}
	switch f.Unit {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	default:
		return false
	}
}

// KeywordConfig is the normalized keyword configuration for a screening
// definition, produced once at the catalog boundary. A config with all three
// lists empty intentionally matches no document; there is no fallback to
// matching on the definition's display name.
type KeywordConfig struct {
	Content   []string `json:"content,omitempty"`
	Filename  []string `json:"filename,omitempty"`
	TypeLabel []string `json:"type_label,omitempty"`
}

func (k KeywordConfig) Empty() bool {
	return len(k.Content) == 0 && len(k.Filename) == 0 && len(k.TypeLabel) == 0
}

type ScreeningDefinition struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	MinAge            *int          `json:"min_age,omitempty"`
	MaxAge            *int          `json:"max_age,omitempty"`
	SexRestriction    string        `json:"sex_restriction,omitempty"`
	TriggerConditions []string      `json:"trigger_conditions,omitempty"`
	Frequency         Frequency     `json:"frequency"`
	Keywords          KeywordConfig `json:"keywords"`
	Active            bool          `json:"active"`
}

type ScreeningStatus string

const (
	StatusDue        ScreeningStatus = "due"
	StatusDueSoon    ScreeningStatus = "due_soon"
	StatusIncomplete ScreeningStatus = "incomplete"
	StatusComplete   ScreeningStatus = "complete"
)

// DocumentLink ties a matched document to a screening result with the
// confidence and field provenance of the match.
type DocumentLink struct {
	DocumentID string  `json:"document_id"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ScreeningResult is the materialized outcome for one (patient, definition)
// pair. It is recomputed from scratch on every pass, never patched.
type ScreeningResult struct {
	PatientID      string          `json:"patient_id"`
	DefinitionID   string          `json:"definition_id"`
	DefinitionName string          `json:"definition_name"`
	Status         ScreeningStatus `json:"status"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	LastCompleted  *time.Time      `json:"last_completed,omitempty"`
	Links          []DocumentLink  `json:"links,omitempty"`
}

// Validate enforces the evidence invariant: a complete result must be backed
// by at least one linked document, an incomplete result by none.
func (r ScreeningResult) Validate() error {
	switch r.Status {
	case StatusComplete:
		if len(r.Links) == 0 {
			return fmt.Errorf("result %s/%s: complete status without linked documents", r.PatientID, r.DefinitionID)
		}
	case StatusIncomplete:
		if len(r.Links) != 0 {
			return fmt.Errorf("result %s/%s: incomplete status with %d linked documents", r.PatientID, r.DefinitionID, len(r.Links))
		}
	}
	return nil
}
