package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchema []byte

// Table describes one queryable logical table and its physical source
type Table struct {
	Name    string   `yaml:"-"`
	Source  string   `yaml:"source"`
	Columns []string `yaml:"columns"`
}

// Registry is the static whitelist of tables, columns, operators and enumerations
type Registry struct {
	MaxLimit           int                 `yaml:"max_limit"`
	DefaultState       string              `yaml:"default_state"`
	Operators          []string            `yaml:"operators"`
	PropertyTypeList   []string            `yaml:"property_types"`
	BedroomPreferences map[string][]int    `yaml:"bedroom_preferences"`
	Tables             map[string]*Table   `yaml:"tables"`
	StateNames         map[string][]string `yaml:"states"`

	columns map[string]map[string]bool
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from the embedded schema.yaml
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Parse(defaultSchema)
		if err != nil {
			panic(fmt.Sprintf("embedded schema is invalid: %v", err))
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// Parse builds a registry from YAML
func Parse(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if len(reg.Tables) == 0 {
		return nil, fmt.Errorf("schema declares no tables")
	}
	if reg.MaxLimit <= 0 {
		return nil, fmt.Errorf("max_limit must be positive")
	}

	reg.columns = make(map[string]map[string]bool, len(reg.Tables))
	for name, table := range reg.Tables {
		if table.Source == "" {
			return nil, fmt.Errorf("table %s has no source", name)
		}
		table.Name = name
		cols := make(map[string]bool, len(table.Columns))
		for _, c := range table.Columns {
			cols[c] = true
		}
		reg.columns[name] = cols
	}
	return &reg, nil
}

// Table returns a whitelisted table by logical name
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.Tables[name]
	return t, ok
}

// HasColumn reports whether col is whitelisted for table
func (r *Registry) HasColumn(table, col string) bool {
	return r.columns[table][col]
}

// IsOperator reports whether op is a whitelisted filter operator
func (r *Registry) IsOperator(op string) bool {
	for _, o := range r.Operators {
		if o == op {
			return true
		}
	}
	return false
}

// PropertyTypes returns the property type enumeration in declared order
func (r *Registry) PropertyTypes() []string {
	out := make([]string, len(r.PropertyTypeList))
	copy(out, r.PropertyTypeList)
	return out
}

// IsPropertyType reports whether pt is a known property type
func (r *Registry) IsPropertyType(pt string) bool {
	for _, p := range r.PropertyTypeList {
		if p == pt {
			return true
		}
	}
	return false
}

// BedroomPreference returns the default bedroom ordering for a property type
func (r *Registry) BedroomPreference(propertyType string) []int {
	pref := r.BedroomPreferences[propertyType]
	out := make([]int, len(pref))
	copy(out, pref)
	return out
}

// States returns the state abbreviations, sorted
func (r *Registry) States() []string {
	out := make([]string, 0, len(r.StateNames))
	for abbr := range r.StateNames {
		out = append(out, abbr)
	}
	sort.Strings(out)
	return out
}

// StateFullNames returns the lower-case full names for an abbreviation
func (r *Registry) StateFullNames(abbr string) []string {
	return r.StateNames[strings.ToUpper(abbr)]
}

// StateByName maps an abbreviation or full name to its abbreviation
func (r *Registry) StateByName(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	for abbr, names := range r.StateNames {
		if strings.ToLower(abbr) == n {
			return abbr, true
		}
		for _, full := range names {
			if full == n {
				return abbr, true
			}
		}
	}
	return "", false
}
