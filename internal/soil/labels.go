package soil

import "strings"

// LabelRule maps labels containing Pattern to Type.
type LabelRule struct {
	Pattern string
	Type    Type
}

// exactLabels is consulted first; keys are lowercase.
var exactLabels = map[string]Type{
	"clay":       Clay,
	"clay soil":  Clay,
	"clayey":     Clay,
	"loam":       Loam,
	"loam soil":  Loam,
	"loamy":      Loam,
	"sandy":      Sandy,
	"sand":       Sandy,
	"sandy soil": Sandy,
	"silt":       Silt,
	"silt soil":  Silt,
	"silty":      Silt,
	"peat":       Peat,
	"peat soil":  Peat,
	"peaty":      Peat,
	"chalk":      Chalk,
	"chalk soil": Chalk,
	"chalky":     Chalk,
}

// containmentRules are tried in order after the exact lookup fails.
// "sandy loam" therefore maps to Loam because the loam rule precedes sand.
var containmentRules = []LabelRule{
	{Pattern: "clay", Type: Clay},
	{Pattern: "loam", Type: Loam},
	{Pattern: "sand", Type: Sandy},
	{Pattern: "silt", Type: Silt},
	{Pattern: "peat", Type: Peat},
	{Pattern: "chalk", Type: Chalk},
}

// ContainmentRules returns a copy of the ordered containment rules.
func ContainmentRules() []LabelRule {
	out := make([]LabelRule, len(containmentRules))
	copy(out, containmentRules)
	return out
}

// MapLabel maps a model output label to a soil type. The second return
// value is false when no exact entry or containment rule matches.
func MapLabel(label string) (Type, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return 0, false
	}

	if t, ok := exactLabels[normalized]; ok {
		return t, true
	}

	for _, rule := range containmentRules {
		if strings.Contains(normalized, rule.Pattern) {
			return rule.Type, true
		}
	}

	return 0, false
}
