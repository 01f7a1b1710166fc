package domain

import "time"

// DocumentRecord is a clinical document owned by a patient. Content may be
// empty when text extraction produced nothing for the source file.
type DocumentRecord struct {
	ID         string     `json:"id"`
	PatientID  string     `json:"patient_id"`
	Content    string     `json:"content,omitempty"`
	Filename   string     `json:"filename"`
	TypeLabel  string     `json:"type_label,omitempty"`
	EventDate  *time.Time `json:"event_date,omitempty"`
	IngestedAt time.Time  `json:"ingested_at"`
}

// EffectiveDate is the date used for all chronological reasoning about the
// document: the real-world event date when present, the ingestion timestamp
// otherwise.
func (d DocumentRecord) EffectiveDate() time.Time {
	if d.EventDate != nil && !d.EventDate.IsZero() {
		return *d.EventDate
	}
	return d.IngestedAt
}
