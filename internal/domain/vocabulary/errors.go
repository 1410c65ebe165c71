package vocabulary

import (
	"fmt"
	"strings"
)

// NormalizationError reasons.
const (
	ReasonUnknownTest     = "unknown_test"
	ReasonUnparsableValue = "unparsable_value"
)

// NormalizationError is a row-level normalization failure. It is never
// fatal: the offending row is rejected and the run continues.
type NormalizationError struct {
	Reason   string
	RawName  string
	RawUnit  string
	RawValue string
	Detail   string
}

func (e *NormalizationError) Error() string {
	switch e.Reason {
	case ReasonUnknownTest:
		return fmt.Sprintf("vocabulary: unknown test %q (unit %q)", e.RawName, e.RawUnit)
	case ReasonUnparsableValue:
		return fmt.Sprintf("vocabulary: unparsable value %q for test %q: %s", e.RawValue, e.RawName, e.Detail)
	}
	return fmt.Sprintf("vocabulary: cannot normalize %q", e.RawName)
}

// ReasonAmbiguousMatch marks a vocabulary that cannot be trusted: a raw
// name matched by more than one pattern, or two patterns that collide
// outright.
const ReasonAmbiguousMatch = "ambiguous_vocabulary_match"

// ConfigurationError is fatal: it aborts the run before any store
// mutation rather than silently picking one of the candidates.
type ConfigurationError struct {
	Reason   string
	RawName  string
	Patterns []string
}

func (e *ConfigurationError) Error() string {
	if e.RawName == "" {
		return fmt.Sprintf("vocabulary: duplicate pattern %s", strings.Join(e.Patterns, ", "))
	}
	return fmt.Sprintf("vocabulary: %q matches multiple patterns: %s", e.RawName, strings.Join(e.Patterns, ", "))
}
