package vocabulary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and compiles the vocabulary table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: read %s: %w", path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: %s: %w", path, err)
	}
	return table, nil
}

// Parse builds a compiled table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vocabulary: %w", err)
	}
	if err := table.compile(); err != nil {
		return nil, err
	}
	return &table, nil
}

// compile builds the pattern matchers and rejects tables that could ever
// produce an ambiguous or inconsistent normalization: patterns that fold
// to the same key, and entries that give one test code two units.
func (t *Table) compile() error {
	t.matchers = make([]matcher, len(t.Entries))
	byKey := make(map[string]string, len(t.Entries))
	unitByCode := make(map[string]string, len(t.Entries))

	for i, e := range t.Entries {
		m := newMatcher(e.Pattern)
		if prev, ok := byKey[m.key]; ok {
			return &ConfigurationError{
				Reason:   ReasonAmbiguousMatch,
				Patterns: []string{fmt.Sprintf("%q", prev), fmt.Sprintf("%q", e.Pattern)},
			}
		}
		byKey[m.key] = e.Pattern

		if unit, ok := unitByCode[e.TestCode]; ok && unit != e.Unit {
			return fmt.Errorf("test code %s mapped to conflicting units %q and %q", e.TestCode, unit, e.Unit)
		}
		unitByCode[e.TestCode] = e.Unit

		t.matchers[i] = m
	}
	return nil
}
