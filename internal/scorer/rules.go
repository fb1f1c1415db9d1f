// Package scorer computes the carpool potential score for filtered
// entities. The score is a deterministic 0 to 100 heuristic over employee
// count, industry, sector and location, used to rank sales outreach.
package scorer

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Variant selects which bonus occupies the final ten point slot. The two
// documented rule sets disagree on it, so both are supported.
type Variant string

const (
	// VariantResearch awards the slot to research and campus environments.
	VariantResearch Variant = "research"
	// VariantGroup awards the slot to sub-entities of a corporate group.
	VariantGroup Variant = "group"
)

// ParseVariant validates a variant name from configuration.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantResearch:
		return VariantResearch, nil
	case VariantGroup:
		return VariantGroup, nil
	}
	return "", eris.Errorf("scorer: unknown variant %q (want research or group)", s)
}

// Rules holds the keyword tables driving the scoring function. Matching is
// case-insensitive substring matching, so keywords are kept lowercase.
type Rules struct {
	ShiftKeywords    []string `yaml:"shift_keywords"`
	PublicKeywords   []string `yaml:"public_keywords"`
	ResearchKeywords []string `yaml:"research_keywords"`
	Districts        []string `yaml:"districts"`
}

// DefaultRules returns the built-in tables. The district names cover the
// business parks of the pilot areas.
func DefaultRules() Rules {
	return Rules{
		ShiftKeywords: []string{
			"produksjon", "industri", "lager", "logistikk", "sikkerhet", "vakt",
			"helse", "sykehus", "pleie", "omsorg", "renhold", "transport",
		},
		PublicKeywords: []string{
			"kommune", "stat", "offentlig", "universitet", "skole", "barnehage",
		},
		ResearchKeywords: []string{
			"forskning", "institutt", "universitet", "vitenskapelig",
		},
		Districts: []string{
			"gjelleråsen", "skytta", "hagan", "campus ås",
		},
	}
}

// LoadRules reads a YAML rules file. Tables the file leaves empty fall back
// to the defaults, so a file can override just the districts.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "scorer: read rules %s", path)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, eris.Wrapf(err, "scorer: parse rules %s", path)
	}
	return normalize(r), nil
}

func normalize(r Rules) Rules {
	def := DefaultRules()
	if len(r.ShiftKeywords) == 0 {
		r.ShiftKeywords = def.ShiftKeywords
	}
	if len(r.PublicKeywords) == 0 {
		r.PublicKeywords = def.PublicKeywords
	}
	if len(r.ResearchKeywords) == 0 {
		r.ResearchKeywords = def.ResearchKeywords
	}
	if len(r.Districts) == 0 {
		r.Districts = def.Districts
	}
	lower := func(words []string) []string {
		out := make([]string, 0, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				out = append(out, w)
			}
		}
		return out
	}
	r.ShiftKeywords = lower(r.ShiftKeywords)
	r.PublicKeywords = lower(r.PublicKeywords)
	r.ResearchKeywords = lower(r.ResearchKeywords)
	r.Districts = lower(r.Districts)
	return r
}
