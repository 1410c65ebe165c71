// Package ingest turns raw lab export files into row sequences under
// explicit per-source layouts. Nothing about a file is auto-detected:
// each source declares its columns, date layout, and delimiter once in
// configuration, and ambiguous data fails loudly instead of being
// guessed at.
package ingest

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	v "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Logical record fields a source mapping binds to CSV columns.
const (
	FieldPatientID      = "patient_id"
	FieldTestName       = "test_name"
	FieldUnit           = "unit"
	FieldValue          = "value"
	FieldCollectionDate = "collection_date"
)

var requiredFields = []string{FieldPatientID, FieldTestName, FieldValue, FieldCollectionDate}

var knownFields = map[string]bool{
	FieldPatientID:      true,
	FieldTestName:       true,
	FieldUnit:           true,
	FieldValue:          true,
	FieldCollectionDate: true,
}

// SourceSpec is the declared layout of one export source. The unit
// mapping is optional; rows from a source without one carry DefaultUnit.
type SourceSpec struct {
	Name        string            `yaml:"-"`
	Delimiter   string            `yaml:"delimiter"`
	DateFormat  string            `yaml:"date_format"`
	DefaultUnit string            `yaml:"default_unit"`
	Columns     map[string]string `yaml:"columns"`
}

// Validate checks the spec shape, that every required field has a column
// mapped, and that the date layout round-trips a full calendar date.
func (s SourceSpec) Validate() error {
	if err := v.ValidateStruct(&s,
		v.Field(&s.DateFormat, v.Required),
		v.Field(&s.Delimiter, v.RuneLength(0, 1)),
		v.Field(&s.Columns, v.Required),
	); err != nil {
		return fmt.Errorf("ingest: source %s: %w", s.Name, err)
	}

	for field := range s.Columns {
		if !knownFields[field] {
			return fmt.Errorf("ingest: source %s: unknown field %q in column mapping", s.Name, field)
		}
	}
	for _, field := range requiredFields {
		if strings.TrimSpace(s.Columns[field]) == "" {
			return &ConfigurationError{Reason: ReasonMissingColumnMapping, Source: s.Name, Field: field}
		}
	}

	if err := checkDateFormat(s.DateFormat); err != nil {
		return fmt.Errorf("ingest: source %s: %w", s.Name, err)
	}
	return nil
}

// comma returns the CSV delimiter rune, defaulting to ','.
func (s SourceSpec) comma() rune {
	if s.Delimiter == "" {
		return ','
	}
	return []rune(s.Delimiter)[0]
}

// checkDateFormat verifies that a Go time layout encodes year, month, and
// day, so DD/MM versus MM/DD is fixed by configuration rather than
// guessed from data.
func checkDateFormat(layout string) error {
	probe := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
	parsed, err := time.Parse(layout, probe.Format(layout))
	if err != nil {
		return fmt.Errorf("invalid date_format %q: %w", layout, err)
	}
	y, m, d := parsed.Date()
	if y != 2024 || m != time.December || d != 31 {
		return fmt.Errorf("date_format %q must encode year, month, and day", layout)
	}
	return nil
}

// Sources is the set of configured source layouts, keyed by name.
type Sources struct {
	byName map[string]SourceSpec
}

// LoadSources reads the source configuration file.
func LoadSources(path string) (Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	sources, err := ParseSources(data)
	if err != nil {
		return Sources{}, fmt.Errorf("ingest: %s: %w", path, err)
	}
	return sources, nil
}

// ParseSources builds validated source specs from YAML bytes.
func ParseSources(data []byte) (Sources, error) {
	var doc struct {
		Sources map[string]SourceSpec `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Sources{}, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Sources) == 0 {
		return Sources{}, fmt.Errorf("no sources defined")
	}

	byName := make(map[string]SourceSpec, len(doc.Sources))
	for name, spec := range doc.Sources {
		spec.Name = name
		if err := spec.Validate(); err != nil {
			return Sources{}, err
		}
		byName[name] = spec
	}
	return Sources{byName: byName}, nil
}

// Get looks up a source layout by name.
func (s Sources) Get(name string) (SourceSpec, bool) {
	spec, ok := s.byName[name]
	return spec, ok
}

// Names returns the configured source names, sorted.
func (s Sources) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured sources.
func (s Sources) Len() int {
	return len(s.byName)
}
