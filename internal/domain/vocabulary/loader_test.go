package vocabulary

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParse_ValidTable(t *testing.T) {
	table, err := Parse([]byte(`
default_locale: pt-BR
entries:
  - pattern: "Hemoglobina"
    test_code: HGB
    unit: g/dL
  - pattern: "Glicose"
    test_code: GLU
    unit: mg/dL
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", table.Len())
	}
	if table.DefaultLocale != LocalePtBR {
		t.Errorf("expected pt-BR default, got %s", table.DefaultLocale)
	}
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("entries: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestParse_RejectsMissingFields(t *testing.T) {
	cases := []string{
		// no default locale
		"entries:\n  - pattern: X\n    test_code: XC\n    unit: u\n",
		// unsupported locale
		"default_locale: fr-FR\nentries:\n  - pattern: X\n    test_code: XC\n    unit: u\n",
		// no entries
		"default_locale: en-US\n",
		// entry missing test_code
		"default_locale: en-US\nentries:\n  - pattern: X\n    unit: u\n",
		// entry missing unit
		"default_locale: en-US\nentries:\n  - pattern: X\n    test_code: XC\n",
		// entry with bad locale
		"default_locale: en-US\nentries:\n  - pattern: X\n    test_code: XC\n    unit: u\n    locale: xx\n",
	}
	for i, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestParse_RejectsZeroScaleTransform(t *testing.T) {
	_, err := Parse([]byte(`
default_locale: en-US
entries:
  - pattern: "X"
    test_code: XC
    unit: u
    transform: { scale: 0, offset: 1 }
`))
	if err == nil {
		t.Error("expected error for zero scale")
	}
}

func TestParse_RejectsDuplicatePatterns(t *testing.T) {
	// Duplicates by fold, not by raw spelling.
	_, err := Parse([]byte(`
default_locale: pt-BR
entries:
  - pattern: "Glicose"
    test_code: GLU
    unit: mg/dL
  - pattern: "  GLICOSE "
    test_code: GLU
    unit: mg/dL
`))
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cerr.Reason != ReasonAmbiguousMatch {
		t.Errorf("expected ambiguous_vocabulary_match, got %s", cerr.Reason)
	}
}

func TestParse_RejectsConflictingUnits(t *testing.T) {
	_, err := Parse([]byte(`
default_locale: pt-BR
entries:
  - pattern: "Glicose"
    test_code: GLU
    unit: mg/dL
  - pattern: "Glucose"
    test_code: GLU
    unit: mmol/L
`))
	if err == nil {
		t.Error("expected error for conflicting units on one test code")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.yaml")
	src := `
default_locale: pt-BR
entries:
  - pattern: "Hemoglobina"
    test_code: HGB
    unit: g/dL
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", table.Len())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
