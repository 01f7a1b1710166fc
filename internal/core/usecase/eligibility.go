package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

// EligibilityFilter decides whether a patient qualifies for a screening
// definition based on age, sex and trigger conditions. All checks must pass;
// the first failing check's reason is returned.
type EligibilityFilter struct {
	clock func() time.Time
}

func NewEligibilityFilter(clock func() time.Time) *EligibilityFilter {
	if clock == nil {
		clock = time.Now
	}
	return &EligibilityFilter{clock: clock}
}

func (f *EligibilityFilter) IsEligible(patient domain.Patient, def domain.ScreeningDefinition) (bool, string) {
	age := patient.AgeAt(f.clock())

	if def.MinAge != nil && age < *def.MinAge {
		return false, fmt.Sprintf("age %d below minimum %d", age, *def.MinAge)
	}
	if def.MaxAge != nil && age > *def.MaxAge {
		return false, fmt.Sprintf("age %d above maximum %d", age, *def.MaxAge)
	}

	if restriction := strings.TrimSpace(def.SexRestriction); restriction != "" && !strings.EqualFold(restriction, "any") {
		if !strings.EqualFold(patient.Sex, restriction) {
			return false, fmt.Sprintf("sex restriction %q not met", restriction)
		}
	}

	if len(def.TriggerConditions) > 0 && !hasTriggerCondition(patient.Conditions, def.TriggerConditions) {
		return false, "no matching trigger condition"
	}

	return true, ""
}

// hasTriggerCondition uses case-insensitive substring containment over the
// condition code and name. Condition vocabularies vary across sources, so
// this is intentionally looser than document keyword matching.
func hasTriggerCondition(conditions []domain.Condition, triggers []string) bool {
	for _, condition := range conditions {
		code := strings.ToLower(condition.Code)
		name := strings.ToLower(condition.Name)
		for _, trigger := range triggers {
			needle := strings.ToLower(strings.TrimSpace(trigger))
			if needle == "" {
				continue
			}
			if strings.Contains(code, needle) || strings.Contains(name, needle) {
				return true
			}
		}
	}
	return false
}
