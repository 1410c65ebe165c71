// Package reference holds advisory per-test reference ranges used to
// annotate query results. The table is optional and its loader lenient:
// a missing file disables annotations and malformed rows are skipped
// with a warning, because reference data must never block consolidation
// or queries.
package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Range is the advisory normal band for one test code.
type Range struct {
	TestCode string  `json:"test_code"`
	Unit     string  `json:"unit,omitempty"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Contains reports whether a value falls inside the band, inclusive.
func (r Range) Contains(value float64) bool {
	return value >= r.Min && value <= r.Max
}

// Table is the loaded set of ranges, keyed by test code.
type Table struct {
	byCode map[string]Range
	order  []string
}

// Load reads the reference range CSV at path. A missing file yields an
// empty table, not an error.
func Load(path string, logger zerolog.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("path", path).Msg("no reference ranges file, annotations disabled")
			return &Table{byCode: map[string]Range{}}, nil
		}
		return nil, fmt.Errorf("reference: open %s: %w", path, err)
	}
	defer f.Close()

	table, err := parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("reference: %s: %w", path, err)
	}
	return table, nil
}

func parse(r io.Reader, logger zerolog.Logger) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"test_code", "min", "max"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("header missing %s column", required)
		}
	}

	table := &Table{byCode: map[string]Range{}}
	row := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			logger.Warn().Int("row", row).Err(err).Msg("skipping malformed reference row")
			continue
		}

		get := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		code := get("test_code")
		if code == "" {
			logger.Warn().Int("row", row).Msg("skipping reference row without test_code")
			continue
		}
		min, errMin := strconv.ParseFloat(get("min"), 64)
		max, errMax := strconv.ParseFloat(get("max"), 64)
		if errMin != nil || errMax != nil || min > max {
			logger.Warn().Int("row", row).Str("test_code", code).Msg("skipping reference row with invalid band")
			continue
		}

		if _, seen := table.byCode[code]; seen {
			logger.Warn().Str("test_code", code).Msg("duplicate reference range, keeping the later row")
		} else {
			table.order = append(table.order, code)
		}
		table.byCode[code] = Range{TestCode: code, Unit: get("unit"), Min: min, Max: max}
	}
	return table, nil
}

// NewTable builds a table from assembled ranges. Later duplicates
// replace earlier ones, mirroring the loader.
func NewTable(ranges []Range) *Table {
	table := &Table{byCode: make(map[string]Range, len(ranges))}
	for _, r := range ranges {
		if _, seen := table.byCode[r.TestCode]; !seen {
			table.order = append(table.order, r.TestCode)
		}
		table.byCode[r.TestCode] = r
	}
	return table
}

// RangeFor looks up the range for a test code.
func (t *Table) RangeFor(testCode string) (Range, bool) {
	r, ok := t.byCode[testCode]
	return r, ok
}

// All returns the ranges in file order.
func (t *Table) All() []Range {
	out := make([]Range, 0, len(t.order))
	for _, code := range t.order {
		out = append(out, t.byCode[code])
	}
	return out
}

// Len returns the number of loaded ranges.
func (t *Table) Len() int {
	return len(t.byCode)
}
