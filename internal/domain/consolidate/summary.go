package consolidate

import (
	"time"

	"github.com/labledger/labledger/internal/domain/exam"
)

// RejectedRow is one source row dropped during parsing or normalization.
// Rejections never abort a run; they are collected here for review.
type RejectedRow struct {
	File   string `json:"file"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// UpdatedRecord describes one stored observation replaced by a later
// batch, keeping both values and both batch numbers for review.
type UpdatedRecord struct {
	PatientID      string    `json:"patient_id"`
	TestCode       string    `json:"test_code"`
	CollectionDate exam.Date `json:"collection_date"`
	OldValue       float64   `json:"old_value"`
	NewValue       float64   `json:"new_value"`
	OldBatchID     int64     `json:"old_batch_id"`
	NewBatchID     int64     `json:"new_batch_id"`
}

// BatchDiffSummary is the outcome of one consolidation run: how every
// incoming record was classified against the store, which rows were
// rejected on the way, and the resulting store size.
type BatchDiffSummary struct {
	RunID          string          `json:"run_id"`
	BatchID        int64           `json:"batch_id"`
	Files          []string        `json:"files"`
	Added          int             `json:"added"`
	Updated        int             `json:"updated"`
	Unchanged      int             `json:"unchanged"`
	Rejected       int             `json:"rejected"`
	StoreTotal     int             `json:"store_total"`
	UpdatedRecords []UpdatedRecord `json:"updated_records,omitempty"`
	RejectedRows   []RejectedRow   `json:"rejected_rows,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// Duration returns how long the run took.
func (s *BatchDiffSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
