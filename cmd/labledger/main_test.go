package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labledger/labledger/internal/domain/consolidate"
	"github.com/labledger/labledger/internal/domain/exam"
)

func TestParseInputArg_Valid(t *testing.T) {
	in, err := parseInputArg("acme=/tmp/batch1.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Source != "acme" {
		t.Errorf("parseInputArg source = %q, want %q", in.Source, "acme")
	}
	if in.Path != "/tmp/batch1.csv" {
		t.Errorf("parseInputArg path = %q, want %q", in.Path, "/tmp/batch1.csv")
	}
}

func TestParseInputArg_PathMayContainEquals(t *testing.T) {
	in, err := parseInputArg("acme=/tmp/run=7/batch.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Path != "/tmp/run=7/batch.csv" {
		t.Errorf("parseInputArg path = %q, want %q", in.Path, "/tmp/run=7/batch.csv")
	}
}

func TestParseInputArg_Invalid(t *testing.T) {
	for _, arg := range []string{"acme", "=path.csv", "acme=", ""} {
		if _, err := parseInputArg(arg); err == nil {
			t.Errorf("parseInputArg(%q) expected error", arg)
		}
	}
}

func TestVerifyStore_Clean(t *testing.T) {
	records := []exam.Record{
		{PatientID: "P1", TestCode: "GLU", CollectionDate: exam.NewDate(2024, time.January, 12), Value: 99, Unit: "mg/dL", SourceBatchID: 1},
		{PatientID: "P1", TestCode: "HGB", CollectionDate: exam.NewDate(2024, time.January, 10), Value: 13.5, Unit: "g/dL", SourceBatchID: 1},
		{PatientID: "P2", TestCode: "GLU", CollectionDate: exam.NewDate(2024, time.January, 10), Value: 101, Unit: "mg/dL", SourceBatchID: 2},
	}
	if err := verifyStore(records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyStore_Empty(t *testing.T) {
	if err := verifyStore(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyStore_OutOfOrder(t *testing.T) {
	records := []exam.Record{
		{PatientID: "P2", TestCode: "GLU", CollectionDate: exam.NewDate(2024, time.January, 10), Value: 101, Unit: "mg/dL", SourceBatchID: 1},
		{PatientID: "P1", TestCode: "HGB", CollectionDate: exam.NewDate(2024, time.January, 10), Value: 13.5, Unit: "g/dL", SourceBatchID: 1},
	}
	if err := verifyStore(records); err == nil {
		t.Fatal("expected ordering error")
	}
}

func TestVerifyStore_DuplicateKey(t *testing.T) {
	rec := exam.Record{PatientID: "P1", TestCode: "HGB", CollectionDate: exam.NewDate(2024, time.January, 10), Value: 13.5, Unit: "g/dL", SourceBatchID: 1}
	dup := rec
	dup.Value = 13.8
	dup.SourceBatchID = 2

	if err := verifyStore([]exam.Record{rec, dup}); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestVerifyStore_UnitConflict(t *testing.T) {
	records := []exam.Record{
		{PatientID: "P1", TestCode: "HGB", CollectionDate: exam.NewDate(2024, time.January, 10), Value: 13.5, Unit: "g/dL", SourceBatchID: 1},
		{PatientID: "P2", TestCode: "HGB", CollectionDate: exam.NewDate(2024, time.January, 10), Value: 135, Unit: "g/L", SourceBatchID: 1},
	}
	if err := verifyStore(records); err == nil {
		t.Fatal("expected unit conflict error")
	}
}

func TestWriteSummaryJSON_File(t *testing.T) {
	summary := &consolidate.BatchDiffSummary{
		RunID:      "run-1",
		BatchID:    3,
		Files:      []string{"acme.csv"},
		Added:      2,
		Unchanged:  1,
		StoreTotal: 3,
	}

	dest := filepath.Join(t.TempDir(), "summary.json")
	if err := writeSummaryJSON(summary, dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got consolidate.BatchDiffSummary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BatchID != 3 || got.Added != 2 || got.StoreTotal != 3 {
		t.Errorf("summary round-trip = %+v", got)
	}
}
