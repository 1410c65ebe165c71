package exam

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/labledger/labledger/internal/platform/atomicfile"
)

// Store file column order. Fixed: downstream readers depend on it.
var storeColumns = []string{"patient_id", "test_code", "collection_date", "value", "unit", "source_batch_id"}

// CSVRepo persists the consolidated store as one flat CSV file, replaced
// wholesale through an atomic rename on every write.
type CSVRepo struct {
	path string
}

func NewCSVRepo(path string) *CSVRepo {
	return &CSVRepo{path: path}
}

func (r *CSVRepo) Path() string {
	return r.path
}

// Load reads the whole store in file order. A missing or empty file is an
// empty store (first run); a malformed file is an error, never a guess.
func (r *CSVRepo) Load() ([]Record, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("exam: open store %s: %w", r.path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(storeColumns)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("exam: store %s: read header: %w", r.path, err)
	}
	for i, want := range storeColumns {
		if strings.TrimSpace(header[i]) != want {
			return nil, fmt.Errorf("exam: store %s: header column %d is %q, want %q", r.path, i+1, header[i], want)
		}
	}

	var records []Record
	row := 1
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("exam: store %s row %d: %w", r.path, row, err)
		}
		record, err := decodeStoreRow(fields)
		if err != nil {
			return nil, fmt.Errorf("exam: store %s row %d: %w", r.path, row, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeStoreRow(fields []string) (Record, error) {
	date, err := ParseDate(DateLayout, fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("invalid collection_date %q", fields[2])
	}
	value, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid value %q", fields[3])
	}
	batch, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid source_batch_id %q", fields[5])
	}

	record := Record{
		PatientID:      fields[0],
		TestCode:       fields[1],
		CollectionDate: date,
		Value:          value,
		Unit:           fields[4],
		SourceBatchID:  batch,
	}
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Write replaces the store with records in canonical order. The caller's
// slice is left unmodified, and the same records always produce the same
// bytes.
func (r *CSVRepo) Write(records []Record) error {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	SortRecords(sorted)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(storeColumns)
	for _, rec := range sorted {
		_ = w.Write([]string{
			rec.PatientID,
			rec.TestCode,
			rec.CollectionDate.String(),
			strconv.FormatFloat(rec.Value, 'f', -1, 64),
			rec.Unit,
			strconv.FormatInt(rec.SourceBatchID, 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("exam: encode store: %w", err)
	}

	if err := atomicfile.WriteFile(r.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("exam: write store %s: %w", r.path, err)
	}
	return nil
}
