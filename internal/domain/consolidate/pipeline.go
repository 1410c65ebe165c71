// Package consolidate runs the batch pipeline: parse the export files,
// normalize raw names and values against the vocabulary, merge the batch
// into the consolidated store, and write the store back atomically.
// Parsing fans out across files; everything from merge on is sequential
// so that batch order, not goroutine scheduling, decides the outcome.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/labledger/labledger/internal/domain/exam"
	"github.com/labledger/labledger/internal/domain/ingest"
	"github.com/labledger/labledger/internal/domain/vocabulary"
	"github.com/labledger/labledger/internal/platform/runlock"
)

// DefaultWorkers bounds the parse fan-out when no worker count is set.
const DefaultWorkers = 4

// InputFile names one export file and the source layout it was written
// in.
type InputFile struct {
	Source string
	Path   string
}

// Options tunes a pipeline.
type Options struct {
	// LockPath is the advisory lock file guarding the store. Defaults to
	// the store path with a ".lock" suffix.
	LockPath string
	// Workers bounds how many files parse concurrently.
	Workers int
	Logger  zerolog.Logger
}

// Pipeline wires the consolidation stages together. One pipeline can run
// many batches; each Consolidate call is a single run guarded by the
// store lock.
type Pipeline struct {
	vocab   *vocabulary.Table
	sources ingest.Sources
	repo    exam.StoreRepository
	lock    string
	workers int
	logger  zerolog.Logger
}

func New(vocab *vocabulary.Table, sources ingest.Sources, repo exam.StoreRepository, opts Options) *Pipeline {
	if opts.LockPath == "" {
		opts.LockPath = repo.Path() + ".lock"
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	return &Pipeline{
		vocab:   vocab,
		sources: sources,
		repo:    repo,
		lock:    opts.LockPath,
		workers: opts.Workers,
		logger:  opts.Logger,
	}
}

type parsedFile struct {
	rows     []ingest.RawRow
	rejected []ingest.ParseError
}

// Consolidate runs one batch through the pipeline. batchID is the batch
// sequence number assigned by the operator; every record ingested in
// this run carries it, and it alone decides merge conflicts. On success
// the store file holds the merged records and the summary classifies
// every incoming observation. On failure nothing is written, except that
// a write failure itself leaves the store state unknown, which the
// returned PipelineError says explicitly.
func (p *Pipeline) Consolidate(ctx context.Context, inputs []InputFile, batchID int64) (*BatchDiffSummary, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("consolidate: no input files")
	}
	if batchID < 1 {
		return nil, fmt.Errorf("consolidate: batch sequence number must be positive, got %d", batchID)
	}

	summary := &BatchDiffSummary{
		RunID:     uuid.NewString(),
		BatchID:   batchID,
		StartedAt: time.Now().UTC(),
	}
	for _, in := range inputs {
		summary.Files = append(summary.Files, in.Path)
	}

	logger := p.logger.With().Str("run_id", summary.RunID).Int64("batch_id", batchID).Logger()
	fail := func(stage Stage, err error) error {
		logger.Error().Err(err).Str("stage", string(stage)).Msg("consolidation run failed")
		return err
	}

	lock, err := runlock.Acquire(p.lock)
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return nil, fail(StageIdle, &PipelineError{Reason: ReasonStoreBusy, Stage: StageIdle, Err: err})
		}
		return nil, fail(StageIdle, fmt.Errorf("consolidate: acquire lock %s: %w", p.lock, err))
	}
	defer lock.Release()

	logger.Info().Int("files", len(inputs)).Msg("consolidation run started")

	// Parsing. Files parse independently, but results keep input order so
	// every later stage sees the same sequence no matter how the
	// goroutines interleave.
	parsed := make([]parsedFile, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			spec, ok := p.sources.Get(in.Source)
			if !ok {
				return fmt.Errorf("consolidate: unknown source %q for %s", in.Source, in.Path)
			}
			f, err := os.Open(in.Path)
			if err != nil {
				return fmt.Errorf("consolidate: open %s: %w", in.Path, err)
			}
			defer f.Close()

			rows, rejected, err := ingest.ParseAll(f, spec, in.Path)
			if err != nil {
				return err
			}
			parsed[i] = parsedFile{rows: rows, rejected: rejected}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fail(StageParsing, err)
	}

	totalRows := 0
	for _, pf := range parsed {
		totalRows += len(pf.rows)
		for _, perr := range pf.rejected {
			summary.RejectedRows = append(summary.RejectedRows, RejectedRow{File: perr.File, Row: perr.Row, Reason: perr.Reason})
		}
	}
	logger.Info().Int("rows", totalRows).Int("rejected", len(summary.RejectedRows)).Msg("parsing finished")

	// Normalizing. Row-level failures reject the row; an ambiguous
	// vocabulary aborts the run before the store is touched.
	incoming := make([]exam.Record, 0, totalRows)
	for _, pf := range parsed {
		for _, row := range pf.rows {
			res, err := p.vocab.Normalize(row.RawTestName, row.RawUnit, row.RawValue)
			if err != nil {
				var nerr *vocabulary.NormalizationError
				if errors.As(err, &nerr) {
					summary.RejectedRows = append(summary.RejectedRows, RejectedRow{File: row.File, Row: row.Row, Reason: nerr.Error()})
					continue
				}
				return nil, fail(StageNormalizing, err)
			}
			incoming = append(incoming, exam.Record{
				PatientID:      row.PatientID,
				TestCode:       res.TestCode,
				CollectionDate: row.CollectionDate,
				Value:          res.Value,
				Unit:           res.Unit,
				SourceBatchID:  batchID,
				RawTestName:    row.RawTestName,
				RawUnit:        row.RawUnit,
				RawValue:       row.RawValue,
			})
		}
	}
	logger.Info().Int("records", len(incoming)).Int("rejected", len(summary.RejectedRows)).Msg("normalization finished")

	existing, err := p.repo.Load()
	if err != nil {
		return nil, fail(StageMerging, fmt.Errorf("consolidate: load store: %w", err))
	}

	merged, err := Merge(existing, incoming, batchID)
	if err != nil {
		return nil, fail(StageMerging, err)
	}
	summary.Added = merged.Added
	summary.Updated = merged.Updated
	summary.Unchanged = merged.Unchanged
	summary.UpdatedRecords = merged.UpdatedRecords
	logger.Info().
		Int("added", merged.Added).
		Int("updated", merged.Updated).
		Int("unchanged", merged.Unchanged).
		Msg("merge finished")

	if err := p.repo.Write(merged.Records); err != nil {
		return nil, fail(StageWriting, &PipelineError{Reason: ReasonStoreWriteFailed, Stage: StageWriting, Err: err})
	}

	summary.Rejected = len(summary.RejectedRows)
	summary.StoreTotal = len(merged.Records)
	summary.FinishedAt = time.Now().UTC()
	logger.Info().
		Int("store_total", summary.StoreTotal).
		Int("rejected", summary.Rejected).
		Dur("took", summary.Duration()).
		Msg("consolidation run finished")
	return summary, nil
}
