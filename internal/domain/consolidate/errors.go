package consolidate

import (
	"fmt"

	"github.com/labledger/labledger/internal/domain/exam"
)

// Stage names one phase of a consolidation run. A run moves through
// idle, parsing, normalizing, merging, and writing in that order and
// ends in done; any fatal error sends it to failed and nothing later
// runs.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageParsing     Stage = "parsing"
	StageNormalizing Stage = "normalizing"
	StageMerging     Stage = "merging"
	StageWriting     Stage = "writing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// ReasonDuplicateBatchID marks two different results for one observation
// under the same batch sequence number. Batch order decides every merge
// conflict, so a tie cannot be resolved and the run must stop.
const ReasonDuplicateBatchID = "duplicate_batch_id"

// MergeError is a fatal conflict found while reconciling records. It is
// raised before any store mutation.
type MergeError struct {
	Reason  string
	Key     exam.Key
	BatchID int64
}

func (e *MergeError) Error() string {
	switch e.Reason {
	case ReasonDuplicateBatchID:
		return fmt.Sprintf("consolidate: conflicting values for %s under batch %d", e.Key, e.BatchID)
	}
	return fmt.Sprintf("consolidate: %s for %s", e.Reason, e.Key)
}

// PipelineError reasons.
const (
	ReasonStoreBusy        = "store_busy"
	ReasonStoreWriteFailed = "store_write_failed"
)

// PipelineError is a fatal run failure tagged with the stage it happened
// in.
type PipelineError struct {
	Reason string
	Stage  Stage
	Err    error
}

func (e *PipelineError) Error() string {
	switch e.Reason {
	case ReasonStoreBusy:
		return fmt.Sprintf("consolidate: store busy: %v", e.Err)
	case ReasonStoreWriteFailed:
		return fmt.Sprintf("consolidate: store write failed: %v; store state unknown, verify the store file manually", e.Err)
	}
	return fmt.Sprintf("consolidate: run failed in stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
