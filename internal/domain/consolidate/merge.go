package consolidate

import (
	"fmt"
	"sort"

	"github.com/labledger/labledger/internal/domain/exam"
)

// MergeResult carries the merged store contents plus the classification
// of every distinct incoming observation.
type MergeResult struct {
	Records        []exam.Record
	Added          int
	Updated        int
	Unchanged      int
	UpdatedRecords []UpdatedRecord
}

// Merge reconciles one batch of incoming records against the stored
// ones. Every incoming record carries batchID as its sequence number,
// and batch order alone decides conflicts: a higher number wins, a lower
// one is ignored, and a tie with a different value is fatal. Records
// that restate the stored result leave the stored row untouched, so
// re-running a batch reproduces the store byte for byte. The returned
// records are in canonical store order.
func Merge(existing, incoming []exam.Record, batchID int64) (*MergeResult, error) {
	stored := make(map[exam.Key]exam.Record, len(existing))
	for _, r := range existing {
		if _, dup := stored[r.Key()]; dup {
			return nil, fmt.Errorf("consolidate: store holds two records for %s", r.Key())
		}
		stored[r.Key()] = r
	}

	// Collapse within-batch duplicates first. A value restated inside one
	// batch is harmless; two different values under one sequence number
	// cannot be ordered.
	batch := make(map[exam.Key]exam.Record, len(incoming))
	order := make([]exam.Key, 0, len(incoming))
	for _, r := range incoming {
		r.SourceBatchID = batchID
		key := r.Key()
		prev, seen := batch[key]
		if !seen {
			batch[key] = r
			order = append(order, key)
			continue
		}
		if !prev.SameResult(r) {
			return nil, &MergeError{Reason: ReasonDuplicateBatchID, Key: key, BatchID: batchID}
		}
	}

	result := &MergeResult{}
	for _, key := range order {
		inc := batch[key]
		cur, exists := stored[key]
		switch {
		case !exists:
			stored[key] = inc
			result.Added++
		case cur.SameResult(inc):
			result.Unchanged++
		case cur.SourceBatchID == batchID:
			return nil, &MergeError{Reason: ReasonDuplicateBatchID, Key: key, BatchID: batchID}
		case cur.SourceBatchID > batchID:
			// A later batch already wrote this observation.
			result.Unchanged++
		default:
			stored[key] = inc
			result.Updated++
			result.UpdatedRecords = append(result.UpdatedRecords, UpdatedRecord{
				PatientID:      key.PatientID,
				TestCode:       key.TestCode,
				CollectionDate: key.CollectionDate,
				OldValue:       cur.Value,
				NewValue:       inc.Value,
				OldBatchID:     cur.SourceBatchID,
				NewBatchID:     batchID,
			})
		}
	}

	records := make([]exam.Record, 0, len(stored))
	for _, r := range stored {
		records = append(records, r)
	}
	exam.SortRecords(records)

	if err := checkUnitInvariant(records); err != nil {
		return nil, err
	}

	// Incoming order follows file order; sort so the summary reads the
	// same however the inputs were listed.
	sort.Slice(result.UpdatedRecords, func(i, j int) bool {
		a, b := result.UpdatedRecords[i], result.UpdatedRecords[j]
		if a.PatientID != b.PatientID {
			return a.PatientID < b.PatientID
		}
		if a.TestCode != b.TestCode {
			return a.TestCode < b.TestCode
		}
		return a.CollectionDate.Before(b.CollectionDate)
	})

	result.Records = records
	return result, nil
}

// checkUnitInvariant rejects a merged store where one test code carries
// two units. Normalization gives every code a single canonical unit, so
// a violation means the vocabulary changed out from under the store.
func checkUnitInvariant(records []exam.Record) error {
	units := make(map[string]string, 16)
	for _, r := range records {
		unit, ok := units[r.TestCode]
		if !ok {
			units[r.TestCode] = r.Unit
			continue
		}
		if unit != r.Unit {
			return fmt.Errorf("consolidate: test code %s carries units %q and %q, rebuild the store against one vocabulary", r.TestCode, unit, r.Unit)
		}
	}
	return nil
}
