package scorer

import (
	"strings"

	"github.com/carpool-pilot/prospect-cli/internal/model"
)

// Point values per component. Employee size dominates because headcount is
// the strongest predictor of enough overlapping commutes to fill cars.
const (
	shiftPoints    = 30
	publicPoints   = 10
	districtPoints = 10
	variantPoints  = 10
	maxScore       = 100
)

// Component names as they appear in Score.Components.
const (
	ComponentEmployees = "employees"
	ComponentShiftWork = "shift_work"
	ComponentPublic    = "public_sector"
	ComponentDistrict  = "district"
	ComponentResearch  = "research"
	ComponentGroup     = "group"
)

// Score is the computed potential for one entity. Components holds the
// points per fired component; components that did not fire are absent.
type Score struct {
	Total      int
	Components map[string]int
}

// Fired reports whether a component contributed to the total.
func (s Score) Fired(component string) bool {
	_, ok := s.Components[component]
	return ok
}

// Compute calculates the carpool potential score. It is a pure function of
// the entity and the rule tables: same input, same score.
func Compute(e model.Entity, rules Rules, variant Variant) Score {
	components := make(map[string]int)

	if tier := employeeTier(e.Employees); tier > 0 {
		components[ComponentEmployees] = tier
	}

	industry := strings.ToLower(e.IndustryText)
	name := strings.ToLower(e.Name)
	address := strings.ToLower(e.FullAddress())

	if containsAny(industry, rules.ShiftKeywords) {
		components[ComponentShiftWork] = shiftPoints
	}
	if containsAny(industry, rules.PublicKeywords) || containsAny(name, rules.PublicKeywords) {
		components[ComponentPublic] = publicPoints
	}
	if containsAny(address, rules.Districts) {
		components[ComponentDistrict] = districtPoints
	}

	switch variant {
	case VariantGroup:
		if e.Source == model.SourceUnderenhet {
			components[ComponentGroup] = variantPoints
		}
	default:
		if containsAny(industry, rules.ResearchKeywords) || containsAny(name, rules.ResearchKeywords) {
			components[ComponentResearch] = variantPoints
		}
	}

	total := 0
	for _, points := range components {
		total += points
	}
	if total > maxScore {
		total = maxScore
	}
	return Score{Total: total, Components: components}
}

// employeeTier maps headcount to the 0 to 50 point employee component.
func employeeTier(n int) int {
	switch {
	case n >= 500:
		return 50
	case n >= 200:
		return 40
	case n >= 100:
		return 30
	case n >= 50:
		return 20
	case n >= 20:
		return 10
	}
	return 0
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
