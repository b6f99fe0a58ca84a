// Package catalog defines the encounter types a consent flow can document.
//
// Encounter types are data, not code: each entry names the acts it offers and
// whether a jurisdiction step applies. The default catalog ships embedded in
// the binary; deployments can load a replacement at startup.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// EncounterType describes one encounter type and its act catalog.
type EncounterType struct {
	Name                 string   `yaml:"name"`
	RequiresJurisdiction bool     `yaml:"requires_jurisdiction"`
	Acts                 []string `yaml:"acts"`
}

// Catalog resolves encounter type names to their definitions.
type Catalog struct {
	types map[string]EncounterType
	names []string
}

type catalogFile struct {
	EncounterTypes []EncounterType `yaml:"encounter_types"`
}

// Load parses a YAML catalog definition.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if len(file.EncounterTypes) == 0 {
		return nil, fmt.Errorf("catalog defines no encounter types")
	}

	types := make(map[string]EncounterType, len(file.EncounterTypes))
	names := make([]string, 0, len(file.EncounterTypes))
	for _, entry := range file.EncounterTypes {
		name := strings.ToLower(strings.TrimSpace(entry.Name))
		if name == "" {
			return nil, fmt.Errorf("catalog entry is missing a name")
		}
		if _, exists := types[name]; exists {
			return nil, fmt.Errorf("catalog entry %q is duplicated", name)
		}
		entry.Name = name
		types[name] = entry
		names = append(names, name)
	}
	sort.Strings(names)

	return &Catalog{types: types, names: names}, nil
}

// Default parses the embedded catalog definition.
func Default() (*Catalog, error) {
	return Load(defaultCatalogYAML)
}

// Has reports whether the encounter type exists.
func (c *Catalog) Has(encounterType string) bool {
	if c == nil {
		return false
	}
	_, ok := c.types[normalize(encounterType)]
	return ok
}

// RequiresJurisdiction reports whether the encounter type includes a
// jurisdiction step. Unknown types require none.
func (c *Catalog) RequiresJurisdiction(encounterType string) bool {
	if c == nil {
		return false
	}
	entry, ok := c.types[normalize(encounterType)]
	return ok && entry.RequiresJurisdiction
}

// Acts returns the act catalog for the encounter type, or nil when unknown.
func (c *Catalog) Acts(encounterType string) []string {
	if c == nil {
		return nil
	}
	entry, ok := c.types[normalize(encounterType)]
	if !ok {
		return nil
	}
	acts := make([]string, len(entry.Acts))
	copy(acts, entry.Acts)
	return acts
}

// Names returns all encounter type names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

func normalize(encounterType string) string {
	return strings.ToLower(strings.TrimSpace(encounterType))
}
