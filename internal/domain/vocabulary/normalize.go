package vocabulary

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents removes combining diacritical marks so "Glicose" and
// "glicose", or "Triglicerídeos" and "Triglicerideos", fold to the same
// lookup key.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldKey reduces a raw test name to its lookup form: trimmed, lowercase,
// accent-free, with internal whitespace runs collapsed to single spaces.
func foldKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(stripAccents, s); err == nil {
		s = folded
	}
	return strings.Join(strings.Fields(s), " ")
}

// matcher is one compiled pattern. Exact patterns compare directly;
// wildcard patterns run a segment walk.
type matcher struct {
	key      string
	wildcard bool
}

func newMatcher(pattern string) matcher {
	key := foldKey(pattern)
	return matcher{key: key, wildcard: strings.Contains(key, "*")}
}

func (m matcher) match(key string) bool {
	if !m.wildcard {
		return m.key == key
	}
	return matchWildcard(m.key, key)
}

// matchWildcard matches s against a pattern where '*' matches any run of
// characters, anchored at both ends unless '*' sits there. path.Match is
// not used because test names may contain '/' ("TGO/AST"), which its '*'
// refuses to cross.
func matchWildcard(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	last := parts[len(parts)-1]
	return last == "" || strings.HasSuffix(s, last)
}

// Result is a normalized observation value.
type Result struct {
	TestCode string
	Unit     string
	Value    float64
}

// Normalize maps a raw (test name, unit, value) triple to its canonical
// form. Exactly one pattern must match the raw name: no match is an
// UnknownTest rejection, more than one is a fatal ConfigurationError.
// The raw value is parsed under the matched entry's locale and the
// entry's transform, if any, is applied.
func (t *Table) Normalize(rawTestName, rawUnit, rawValue string) (Result, error) {
	key := foldKey(rawTestName)

	var found []int
	for i := range t.matchers {
		if t.matchers[i].match(key) {
			found = append(found, i)
		}
	}

	switch len(found) {
	case 1:
	case 0:
		return Result{}, &NormalizationError{
			Reason:  ReasonUnknownTest,
			RawName: rawTestName,
			RawUnit: rawUnit,
		}
	default:
		patterns := make([]string, len(found))
		for i, idx := range found {
			patterns[i] = strconv.Quote(t.Entries[idx].Pattern)
		}
		return Result{}, &ConfigurationError{
			Reason:   ReasonAmbiguousMatch,
			RawName:  rawTestName,
			Patterns: patterns,
		}
	}

	entry := &t.Entries[found[0]]
	value, err := parseDecimal(rawValue, t.localeOf(entry) == LocalePtBR)
	if err != nil {
		return Result{}, &NormalizationError{
			Reason:   ReasonUnparsableValue,
			RawName:  rawTestName,
			RawUnit:  rawUnit,
			RawValue: rawValue,
			Detail:   err.Error(),
		}
	}
	if entry.Transform != nil {
		value = entry.Transform.Apply(value)
	}

	return Result{TestCode: entry.TestCode, Unit: entry.Unit, Value: value}, nil
}

// parseDecimal parses a numeric string under one declared decimal
// convention. commaDecimal selects ',' as the decimal mark with '.'
// grouping; otherwise '.' is the decimal mark with ',' grouping. A value
// written under the wrong convention fails loudly instead of being read
// as a different number.
func parseDecimal(raw string, commaDecimal bool) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	group, point := byte(','), byte('.')
	if commaDecimal {
		group, point = '.', ','
	}
	if err := checkSeparators(s, group, point); err != nil {
		return 0, err
	}

	s = strings.ReplaceAll(s, string(group), "")
	if commaDecimal {
		s = strings.Replace(s, ",", ".", 1)
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return value, nil
}

// checkSeparators verifies that the decimal mark appears at most once and
// that every grouping separator splits the integer part into 3-digit
// groups.
func checkSeparators(s string, group, point byte) error {
	intPart := s
	if i := strings.IndexByte(s, point); i >= 0 {
		intPart = s[:i]
		frac := s[i+1:]
		if strings.IndexByte(frac, point) >= 0 {
			return fmt.Errorf("multiple decimal separators")
		}
		if strings.IndexByte(frac, group) >= 0 {
			return fmt.Errorf("grouping separator after decimal mark")
		}
	}
	if strings.IndexByte(intPart, group) < 0 {
		return nil
	}
	intPart = strings.TrimLeft(intPart, "+-")
	groups := strings.Split(intPart, string(group))
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return fmt.Errorf("malformed digit grouping")
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return fmt.Errorf("malformed digit grouping")
		}
	}
	return nil
}
