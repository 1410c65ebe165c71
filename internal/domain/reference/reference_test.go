package reference

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParse_LoadsRanges(t *testing.T) {
	input := strings.Join([]string{
		"test_code,unit,min,max",
		"HGB,g/dL,12,16",
		"GLU,mg/dL,70,99",
	}, "\n")

	table, err := parse(strings.NewReader(input), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 ranges, got %d", table.Len())
	}

	r, ok := table.RangeFor("HGB")
	if !ok {
		t.Fatal("expected HGB range")
	}
	if r.Min != 12 || r.Max != 16 || r.Unit != "g/dL" {
		t.Errorf("unexpected range %+v", r)
	}
}

func TestParse_SkipsInvalidRows(t *testing.T) {
	input := strings.Join([]string{
		"test_code,unit,min,max",
		"HGB,g/dL,12,16",
		",g/dL,1,2",
		"BAD,g/dL,abc,2",
		"FLIP,g/dL,9,2",
	}, "\n")

	table, err := parse(strings.NewReader(input), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("expected only the valid row, got %d", table.Len())
	}
}

func TestParse_RejectsMissingColumns(t *testing.T) {
	if _, err := parse(strings.NewReader("test_code,unit\nHGB,g/dL\n"), zerolog.Nop()); err == nil {
		t.Error("expected error for missing min/max columns")
	}
}

func TestRange_Contains(t *testing.T) {
	r := Range{Min: 12, Max: 16}
	for v, want := range map[float64]bool{11.9: false, 12: true, 14: true, 16: true, 16.1: false} {
		if got := r.Contains(v); got != want {
			t.Errorf("Contains(%v) = %v, want %v", v, got, want)
		}
	}
}

func TestLoad_MissingFileIsEmptyTable(t *testing.T) {
	table, err := Load(filepath.Join(t.TempDir(), "nope.csv"), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("expected empty table, got %d", table.Len())
	}
	if _, ok := table.RangeFor("HGB"); ok {
		t.Error("expected lookup miss on empty table")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference_ranges.csv")
	if err := os.WriteFile(path, []byte("test_code,unit,min,max\nHGB,g/dL,12,16\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 range, got %d", table.Len())
	}

	all := table.All()
	if len(all) != 1 || all[0].TestCode != "HGB" {
		t.Errorf("unexpected ranges %v", all)
	}
}
