package game

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Riddle is one hidden coin with the hints that lead to it.
type Riddle struct {
	Coin    string   `yaml:"coin"`
	Aliases []string `yaml:"aliases"`
	Hints   []string `yaml:"hints"`
}

// Catalog is the set of riddles a game is drawn from.
type Catalog struct {
	Riddles []Riddle `yaml:"riddles"`
}

// LoadCatalog reads a YAML catalog from path, or the built-in catalog when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read riddle catalog: %w", err)
	}

	return ParseCatalog(content)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(content []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("parse riddle catalog: %w", err)
	}

	if len(catalog.Riddles) == 0 {
		return nil, errors.New("riddle catalog is empty")
	}

	for i := range catalog.Riddles {
		riddle := &catalog.Riddles[i]
		riddle.Coin = strings.ToLower(strings.TrimSpace(riddle.Coin))
		if riddle.Coin == "" {
			return nil, fmt.Errorf("riddle %d: coin is required", i)
		}
		if len(riddle.Hints) == 0 {
			return nil, fmt.Errorf("riddle %q: at least one hint is required", riddle.Coin)
		}
		for j, alias := range riddle.Aliases {
			riddle.Aliases[j] = strings.ToLower(strings.TrimSpace(alias))
		}
	}

	return &catalog, nil
}

// Matches reports whether guess names the riddle's coin or one of its aliases.
func (r Riddle) Matches(guess string) bool {
	guess = strings.ToLower(strings.TrimSpace(guess))
	guess = strings.TrimPrefix(guess, "$")
	if guess == "" {
		return false
	}
	if guess == r.Coin {
		return true
	}
	for _, alias := range r.Aliases {
		if alias != "" && guess == alias {
			return true
		}
	}

	return false
}
