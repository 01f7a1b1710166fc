package domain

import "time"

type TriggerKind string

const (
	TriggerFullRun               TriggerKind = "full_run"
	TriggerDefinitionActivated   TriggerKind = "definition_activated"
	TriggerDefinitionDeactivated TriggerKind = "definition_deactivated"
	TriggerKeywordsChanged       TriggerKind = "keywords_changed"
	TriggerDocumentAdded         TriggerKind = "document_added"
	TriggerDocumentRemoved       TriggerKind = "document_removed"
)

// TriggerEvent asks the orchestrator for a targeted or full determination
// pass. PatientID is set for document triggers, DefinitionID for catalog
// triggers.
type TriggerEvent struct {
	Kind         TriggerKind `json:"kind"`
	DefinitionID string      `json:"definition_id,omitempty"`
	PatientID    string      `json:"patient_id,omitempty"`
}

// RunMetrics is the structured summary of one bulk determination run.
type RunMetrics struct {
	Trigger           string        `json:"trigger"`
	Total             int           `json:"total"`
	Processed         int           `json:"processed"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"`
	CircuitTrips      int           `json:"circuit_trips"`
	ScreeningsUpdated int           `json:"screenings_updated"`
	DocumentsLinked   int           `json:"documents_linked"`
	Elapsed           time.Duration `json:"elapsed"`
}
