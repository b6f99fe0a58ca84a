package flow

import (
	"sort"
	"strings"
)

// RenderSummary builds a human-readable one-line digest of the flow for
// draft listings and share previews. A state with an encounter type always
// yields a non-empty summary.
func RenderSummary(state State) string {
	if state.EncounterType == "" {
		return ""
	}

	sections := []string{state.EncounterType}

	if parties := state.NonEmptyParties(); len(parties) > 0 {
		sections = append(sections, "with "+strings.Join(parties, ", "))
	}

	var agreed []string
	for act, choice := range state.Acts {
		if choice == ActYes {
			agreed = append(agreed, act)
		}
	}
	if len(agreed) > 0 {
		sort.Strings(agreed)
		sections = append(sections, "agreed: "+strings.Join(agreed, ", "))
	}

	if label := state.Jurisdiction.Label(); label != "" {
		sections = append(sections, "jurisdiction: "+label)
	}

	return strings.Join(sections, "; ")
}
