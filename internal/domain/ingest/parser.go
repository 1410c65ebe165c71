package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/labledger/labledger/internal/domain/exam"
)

// RawRow is one successfully parsed source row, still carrying the raw
// test name, unit, and value strings for the normalizer.
type RawRow struct {
	File           string
	Row            int
	PatientID      string
	RawTestName    string
	RawUnit        string
	RawValue       string
	CollectionDate exam.Date
}

// Parser reads one export file as a single forward pass: each Next yields
// either a parsed row or a row-level ParseError, and a consumed reader
// cannot be rewound. The header is read and resolved against the source
// mapping at construction.
type Parser struct {
	file string
	spec SourceSpec
	r    *csv.Reader
	cols map[string]int
	row  int
	done bool

	current RawRow
	rowErr  *ParseError
}

// NewParser resolves the file header against the source's column mapping.
// A mapped column missing from the header is a fatal ConfigurationError:
// the configuration contradicts the file, and no row can be trusted.
func NewParser(r io.Reader, spec SourceSpec, file string) (*Parser, error) {
	cr := csv.NewReader(r)
	cr.Comma = spec.comma()
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	p := &Parser{file: file, spec: spec, r: cr}
	if err := p.readHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) readHeader() error {
	header, err := p.r.Read()
	if err != nil {
		return fmt.Errorf("ingest: %s: read header: %w", p.file, err)
	}
	p.row = 1

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}

	p.cols = make(map[string]int, len(p.spec.Columns))
	for field, column := range p.spec.Columns {
		idx, ok := index[strings.ToLower(strings.TrimSpace(column))]
		if !ok {
			return &ConfigurationError{
				Reason: ReasonMissingColumnMapping,
				Source: p.spec.Name,
				Column: column,
				File:   p.file,
			}
		}
		p.cols[field] = idx
	}
	return nil
}

// Next advances to the next data row. It returns false only at end of
// input; malformed rows still return true and are reported by RowErr.
func (p *Parser) Next() bool {
	if p.done {
		return false
	}
	record, err := p.r.Read()
	if err == io.EOF {
		p.done = true
		return false
	}
	p.row++
	if err != nil {
		p.current, p.rowErr = RawRow{}, &ParseError{File: p.file, Row: p.row, Reason: err.Error()}
		return true
	}
	p.current, p.rowErr = p.parseRecord(record)
	return true
}

// Row returns the current parsed row. Valid only when RowErr is nil.
func (p *Parser) Row() RawRow {
	return p.current
}

// RowErr returns the current row's error, nil for a well-formed row.
func (p *Parser) RowErr() *ParseError {
	return p.rowErr
}

func (p *Parser) parseRecord(record []string) (RawRow, *ParseError) {
	get := func(field string) string {
		idx, ok := p.cols[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	fail := func(reason string) (RawRow, *ParseError) {
		return RawRow{}, &ParseError{File: p.file, Row: p.row, Reason: reason}
	}

	patientID := get(FieldPatientID)
	if patientID == "" {
		return fail("missing patient id")
	}
	testName := get(FieldTestName)
	if testName == "" {
		return fail("missing test name")
	}
	rawValue := get(FieldValue)
	if rawValue == "" {
		return fail("missing value")
	}
	rawDate := get(FieldCollectionDate)
	if rawDate == "" {
		return fail("missing collection date")
	}

	date, err := exam.ParseDate(p.spec.DateFormat, rawDate)
	if err != nil {
		return fail(fmt.Sprintf("unparsable date %q (expected layout %s)", rawDate, p.spec.DateFormat))
	}

	unit := get(FieldUnit)
	if unit == "" {
		unit = p.spec.DefaultUnit
	}

	return RawRow{
		File:           p.file,
		Row:            p.row,
		PatientID:      patientID,
		RawTestName:    testName,
		RawUnit:        unit,
		RawValue:       rawValue,
		CollectionDate: date,
	}, nil
}

// ParseAll drains a parser, splitting rows from row errors. The fatal
// error is non-nil only when the parser itself cannot be built.
func ParseAll(r io.Reader, spec SourceSpec, file string) ([]RawRow, []ParseError, error) {
	p, err := NewParser(r, spec, file)
	if err != nil {
		return nil, nil, err
	}

	var rows []RawRow
	var rowErrs []ParseError
	for p.Next() {
		if perr := p.RowErr(); perr != nil {
			rowErrs = append(rowErrs, *perr)
			continue
		}
		rows = append(rows, p.Row())
	}
	return rows, rowErrs, nil
}
