package domain

import "time"

// Condition is an active medical condition on a patient's problem list.
// Code carries the external coding-system identifier when one is known.
type Condition struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type Patient struct {
	ID          string      `json:"id"`
	DateOfBirth time.Time   `json:"date_of_birth"`
	Sex         string      `json:"sex"`
	Conditions  []Condition `json:"conditions,omitempty"`
}

// AgeAt returns the patient's age in completed years at the reference date.
func (p Patient) AgeAt(ref time.Time) int {
	years := ref.Year() - p.DateOfBirth.Year()
	if ref.Month() < p.DateOfBirth.Month() ||
		(ref.Month() == p.DateOfBirth.Month() && ref.Day() < p.DateOfBirth.Day()) {
		years--
	}
	return years
}
