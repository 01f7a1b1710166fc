package usecase

import (
	"time"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

// NextDueDate computes when a screening is next due from its last completion
// and repeat frequency. Months and years use true calendar arithmetic with
// end-of-month clamping, never a fixed 30-day approximation. Returns nil when
// there is no completion date or no usable frequency.
func NextDueDate(lastCompleted *time.Time, freq domain.Frequency) *time.Time {
	if lastCompleted == nil || lastCompleted.IsZero() || !freq.Valid() {
		return nil
	}

	base := truncateToDate(*lastCompleted)
	var due time.Time
	switch freq.Unit {
	case domain.UnitDays:
		due = base.AddDate(0, 0, freq.Count)
	case domain.UnitWeeks:
		due = base.AddDate(0, 0, 7*freq.Count)
	case domain.UnitMonths:
		due = addMonthsClamped(base, freq.Count)
	case domain.UnitYears:
		due = addMonthsClamped(base, 12*freq.Count)
	default:
		return nil
	}
	return &due
}

// addMonthsClamped advances by whole calendar months, clamping the day to the
// last day of the target month. time.AddDate would normalize Jan 31 + 1 month
// into March; a screening completed on the 31st is due at month end instead.
// The same clamp handles Feb 29 plus a non-leap year count.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
	target := first.AddDate(0, months, 0)

	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncateToDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
