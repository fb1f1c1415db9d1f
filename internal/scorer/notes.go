package scorer

import (
	"fmt"
	"strings"

	"github.com/carpool-pilot/prospect-cli/internal/model"
)

// Notes builds the short sales notes for a scored entity. Each phrase is
// keyed to a component that actually fired, so the notes never claim
// something the score does not reflect. Output language follows the sales
// team, which works in Norwegian.
func Notes(e model.Entity, s Score) string {
	var parts []string

	if tier, ok := s.Components[ComponentEmployees]; ok {
		switch {
		case tier >= 40:
			parts = append(parts, fmt.Sprintf("Stor arbeidsplass med %d ansatte", e.Employees))
		case tier >= 20:
			parts = append(parts, fmt.Sprintf("Mellomstor arbeidsplass med %d ansatte", e.Employees))
		default:
			parts = append(parts, fmt.Sprintf("Arbeidsplass med %d ansatte", e.Employees))
		}
	}
	if s.Fired(ComponentShiftWork) {
		parts = append(parts, "skiftarbeid gir faste arbeidstider og gode samkjøringsmuligheter")
	}
	if s.Fired(ComponentPublic) {
		parts = append(parts, "offentlig sektor med forutsigbar arbeidstid")
	}
	if s.Fired(ComponentDistrict) {
		parts = append(parts, "ligger i etablert næringsområde med flere naboer å samkjøre med")
	}
	if s.Fired(ComponentResearch) {
		parts = append(parts, "forsknings- og campusmiljø med mange ansatte på samme sted")
	}
	if s.Fired(ComponentGroup) {
		parts = append(parts, "del av konsern, én beslutning kan dekke flere enheter")
	}

	if len(parts) == 0 {
		return "Begrenset samkjøringspotensial."
	}
	return strings.Join(parts, "; ") + "."
}
