package exam

import (
	"fmt"
	"sort"
)

// Record is one consolidated lab observation. The canonical fields are the
// only ones persisted in the store file; the raw fields carry the original
// source values for audit and never participate in comparisons or merges.
type Record struct {
	PatientID      string  `json:"patient_id"`
	TestCode       string  `json:"test_code"`
	CollectionDate Date    `json:"collection_date"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit"`
	SourceBatchID  int64   `json:"source_batch_id"`

	RawTestName string `json:"raw_test_name,omitempty"`
	RawUnit     string `json:"raw_unit,omitempty"`
	RawValue    string `json:"raw_value,omitempty"`
}

// Key is the merge key: two records sharing a Key describe the same
// observation and must be reconciled, never stored side by side.
type Key struct {
	PatientID      string
	TestCode       string
	CollectionDate Date
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.PatientID, k.TestCode, k.CollectionDate)
}

// Key returns the record's merge key.
func (r Record) Key() Key {
	return Key{PatientID: r.PatientID, TestCode: r.TestCode, CollectionDate: r.CollectionDate}
}

// SameResult reports whether two records carry the same canonical result,
// ignoring provenance and raw audit fields. Used to tell a re-submission
// from a genuine update.
func (r Record) SameResult(o Record) bool {
	return r.Value == o.Value && r.Unit == o.Unit
}

// Less orders records by patient, then test code, then collection date,
// the canonical store order.
func Less(a, b Record) bool {
	if a.PatientID != b.PatientID {
		return a.PatientID < b.PatientID
	}
	if a.TestCode != b.TestCode {
		return a.TestCode < b.TestCode
	}
	return a.CollectionDate.Before(b.CollectionDate)
}

// SortRecords sorts records in place into canonical store order.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return Less(records[i], records[j])
	})
}

// Validate checks the structural invariants of a single record.
func (r Record) Validate() error {
	if r.PatientID == "" {
		return fmt.Errorf("exam: record missing patient_id")
	}
	if r.TestCode == "" {
		return fmt.Errorf("exam: record missing test_code")
	}
	if r.CollectionDate.IsZero() {
		return fmt.Errorf("exam: record missing collection_date")
	}
	if r.Unit == "" {
		return fmt.Errorf("exam: record missing unit")
	}
	return nil
}
