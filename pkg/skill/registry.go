package skill

import (
	"errors"
	"fmt"
	"strings"
)

// Registry is the immutable, pre-flattened set of skills. Flattening order is
// group order then in-group order, and it is the tie-break for matching.
type Registry struct {
	groups []Group
	skills []Skill
}

// NewRegistry validates groups and flattens them once.
func NewRegistry(groups ...Group) (*Registry, error) {
	registry := &Registry{groups: make([]Group, 0, len(groups))}
	seen := make(map[string]string)

	for _, group := range groups {
		groupName := strings.TrimSpace(group.Name)
		if groupName == "" {
			return nil, errors.New("skill group name is required")
		}

		normalized := Group{Name: groupName, Skills: make([]Skill, 0, len(group.Skills))}
		for _, s := range group.Skills {
			name := strings.TrimSpace(s.Name)
			if name == "" {
				return nil, fmt.Errorf("skill in group %q has no name", groupName)
			}
			if owner, ok := seen[name]; ok {
				return nil, fmt.Errorf("skill %q in group %q already registered in group %q", name, groupName, owner)
			}
			if s.Handler == nil {
				return nil, fmt.Errorf("skill %q has no handler", name)
			}
			seen[name] = groupName

			s.Name = name
			s.Triggers = normalizeTriggers(s.Triggers)
			normalized.Skills = append(normalized.Skills, s)
			registry.skills = append(registry.skills, s)
		}

		registry.groups = append(registry.groups, normalized)
	}

	return registry, nil
}

// MustRegistry is NewRegistry for statically known groups; it panics on error.
func MustRegistry(groups ...Group) *Registry {
	registry, err := NewRegistry(groups...)
	if err != nil {
		panic(err)
	}

	return registry
}

// Groups returns a copy of the registered groups.
func (r *Registry) Groups() []Group {
	out := make([]Group, len(r.groups))
	for i, group := range r.groups {
		out[i] = Group{Name: group.Name, Skills: append([]Skill(nil), group.Skills...)}
	}

	return out
}

// Skills returns a copy of the flattened skill sequence.
func (r *Registry) Skills() []Skill {
	return append([]Skill(nil), r.skills...)
}

// Lookup returns a skill by name.
func (r *Registry) Lookup(name string) (Skill, bool) {
	name = strings.TrimSpace(name)
	for _, s := range r.skills {
		if s.Name == name {
			return s, true
		}
	}

	return Skill{}, false
}

// Describe renders a help listing in registry order.
func (r *Registry) Describe() string {
	var b strings.Builder
	for i, group := range r.groups {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(group.Name)
		b.WriteString(":\n")
		for _, s := range group.Skills {
			b.WriteString("- ")
			b.WriteString(s.Name)
			if len(s.Triggers) > 0 {
				b.WriteString(" (")
				b.WriteString(strings.Join(s.Triggers, ", "))
				b.WriteString(")")
			}
			if desc := strings.TrimSpace(s.Description); desc != "" {
				b.WriteString(": ")
				b.WriteString(desc)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String())
}

func normalizeTriggers(triggers []string) []string {
	out := make([]string, 0, len(triggers))
	for _, trigger := range triggers {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger == "" {
			continue
		}
		out = append(out, trigger)
	}

	return out
}
