package ingest

import "fmt"

// ParseError is one malformed source row. Row-level and non-fatal: the
// row is rejected with its position and reason, and parsing continues.
type ParseError struct {
	File   string
	Row    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ingest: %s row %d: %s", e.File, e.Row, e.Reason)
}

// ReasonMissingColumnMapping marks a source whose column mapping does not
// line up with reality, either in the configuration itself or against an
// actual file header.
const ReasonMissingColumnMapping = "missing_column_mapping"

// ConfigurationError reports a source configuration that cannot ingest
// anything. Fatal: surfaced before any store mutation.
type ConfigurationError struct {
	Reason string
	Source string
	Field  string // logical field with no column mapped
	Column string // mapped column absent from the file header
	File   string
}

func (e *ConfigurationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("ingest: source %s: column %q not found in %s header", e.Source, e.Column, e.File)
	}
	return fmt.Sprintf("ingest: source %s: no column mapped for %s", e.Source, e.Field)
}
