// Package vocabulary maps the raw test names and units found in
// heterogeneous lab exports to canonical test codes, applying configured
// unit conversions and locale-aware numeric parsing. The table is loaded
// once per run and is immutable afterwards; normalization is a pure
// function over a row and the table.
package vocabulary

import (
	v "github.com/go-ozzo/ozzo-validation/v4"
)

// Locales accepted in vocabulary configuration. The locale decides which
// decimal convention a raw value is parsed under; it is never guessed
// from the value itself.
const (
	LocalePtBR = "pt-BR" // comma decimal mark, dot thousands grouping
	LocaleEnUS = "en-US" // dot decimal mark, comma thousands grouping
)

// Transform is a linear conversion applied to a parsed value, typically a
// unit conversion such as mmol/L to mg/dL.
type Transform struct {
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

func (t Transform) Validate() error {
	return v.ValidateStruct(&t,
		v.Field(&t.Scale, v.Required.Error("scale must be non-zero")),
	)
}

// Apply runs the transform.
func (t Transform) Apply(value float64) float64 {
	return value*t.Scale + t.Offset
}

// Entry maps one raw test-name pattern to its canonical identity. The
// pattern is an exact string or a simple wildcard where '*' matches any
// run of characters; matching is case-insensitive, whitespace-collapsed,
// and accent-folded.
type Entry struct {
	Pattern   string     `yaml:"pattern"`
	TestCode  string     `yaml:"test_code"`
	Unit      string     `yaml:"unit"`
	Transform *Transform `yaml:"transform"`
	Locale    string     `yaml:"locale"`
}

func (e Entry) Validate() error {
	return v.ValidateStruct(&e,
		v.Field(&e.Pattern, v.Required),
		v.Field(&e.TestCode, v.Required),
		v.Field(&e.Unit, v.Required),
		v.Field(&e.Locale, v.In(LocalePtBR, LocaleEnUS)),
		v.Field(&e.Transform),
	)
}

// Table is the vocabulary for one consolidation run. Build it with Load
// or Parse; the zero value is unusable.
type Table struct {
	DefaultLocale string  `yaml:"default_locale"`
	Entries       []Entry `yaml:"entries"`

	matchers []matcher
}

func (t Table) Validate() error {
	return v.ValidateStruct(&t,
		v.Field(&t.DefaultLocale, v.Required, v.In(LocalePtBR, LocaleEnUS)),
		v.Field(&t.Entries, v.Required),
	)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.Entries)
}

// TestCodes returns the distinct canonical codes the table can produce.
func (t *Table) TestCodes() []string {
	seen := make(map[string]bool, len(t.Entries))
	codes := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		if !seen[e.TestCode] {
			seen[e.TestCode] = true
			codes = append(codes, e.TestCode)
		}
	}
	return codes
}

// localeOf resolves the effective locale for an entry.
func (t *Table) localeOf(e *Entry) string {
	if e.Locale != "" {
		return e.Locale
	}
	return t.DefaultLocale
}
