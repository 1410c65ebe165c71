package exam

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/labledger/labledger/internal/domain/reference"
)

// ErrNotFound is returned by queries that matched nothing.
var ErrNotFound = errors.New("exam: no matching records")

// Snapshot is one immutable, consistent view of the store. Every query
// runs against a single snapshot; a reload builds a new one and swaps it
// in without disturbing queries already in flight.
type Snapshot struct {
	records   []Record
	byPatient map[string][]Record
	codes     []string
	loadedAt  time.Time
}

// NewSnapshot indexes records into a snapshot. The input is copied.
func NewSnapshot(records []Record) *Snapshot {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	SortRecords(sorted)

	byPatient := make(map[string][]Record)
	codeSet := make(map[string]bool)
	for _, r := range sorted {
		byPatient[r.PatientID] = append(byPatient[r.PatientID], r)
		codeSet[r.TestCode] = true
	}
	codes := make([]string, 0, len(codeSet))
	for code := range codeSet {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return &Snapshot{records: sorted, byPatient: byPatient, codes: codes, loadedAt: time.Now().UTC()}
}

// RecordsFor returns the patient's records in canonical order.
func (s *Snapshot) RecordsFor(patientID string) []Record {
	records := s.byPatient[patientID]
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// TestCodes returns the distinct test codes present, sorted.
func (s *Snapshot) TestCodes() []string {
	out := make([]string, len(s.codes))
	copy(out, s.codes)
	return out
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Service answers the read-only queries exposed to the presentation
// layer. It never mutates the store; consolidation happens elsewhere and
// readers pick up new data through Reload.
type Service struct {
	repo  StoreRepository
	refs  *reference.Table
	cache *cache.Cache
	snap  atomic.Pointer[Snapshot]
}

// NewService builds a query service over the store. refs may be empty;
// cacheTTL bounds how long computed series responses are kept.
func NewService(repo StoreRepository, refs *reference.Table, cacheTTL time.Duration) *Service {
	if refs == nil {
		refs = &reference.Table{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	svc := &Service{
		repo:  repo,
		refs:  refs,
		cache: cache.New(cacheTTL, 5*time.Minute),
	}
	svc.snap.Store(NewSnapshot(nil))
	return svc
}

// Reload reads the store file and swaps the live snapshot, returning the
// number of records loaded. Cached query results are dropped.
func (s *Service) Reload() (int, error) {
	records, err := s.repo.Load()
	if err != nil {
		return 0, fmt.Errorf("exam: reload: %w", err)
	}
	snap := NewSnapshot(records)
	s.snap.Store(snap)
	s.cache.Flush()
	return snap.Len(), nil
}

// Snapshot returns the current live snapshot.
func (s *Service) Snapshot() *Snapshot {
	return s.snap.Load()
}

// RecordsFor returns one patient's records in canonical order.
func (s *Service) RecordsFor(patientID string) []Record {
	return s.Snapshot().RecordsFor(patientID)
}

// TestCodes returns the distinct test codes in the store, sorted.
func (s *Service) TestCodes() []string {
	return s.Snapshot().TestCodes()
}

// ReferenceRanges returns the loaded advisory ranges.
func (s *Service) ReferenceRanges() []reference.Range {
	return s.refs.All()
}
