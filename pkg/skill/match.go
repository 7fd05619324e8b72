package skill

import "strings"

// Match returns the first skill, in flattening order, with any trigger that is
// a substring of the lower-cased text. Matching is substring based, so the
// trigger "go" also matches "forego".
func Match(text string, registry *Registry) (Skill, bool) {
	if registry == nil {
		return Skill{}, false
	}

	normalized := strings.ToLower(text)
	if strings.TrimSpace(normalized) == "" {
		return Skill{}, false
	}

	for _, s := range registry.skills {
		for _, trigger := range s.Triggers {
			if strings.Contains(normalized, trigger) {
				return s, true
			}
		}
	}

	return Skill{}, false
}
