package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/labledger/labledger/internal/domain/consolidate"
	"github.com/labledger/labledger/internal/domain/exam"
	"github.com/labledger/labledger/internal/domain/ingest"
	"github.com/labledger/labledger/internal/domain/vocabulary"
)

// testEnv is one on-disk consolidation environment: configuration files,
// the store, and the loaded tables, all inside a per-test temp dir.
type testEnv struct {
	Dir     string
	Store   *exam.CSVRepo
	Vocab   *vocabulary.Table
	Sources ingest.Sources
}

const vocabularyYAML = `default_locale: en-US
entries:
  - pattern: Hemoglobin
    test_code: HGB
    unit: g/dL
  - pattern: "Glucose*"
    test_code: GLU
    unit: mg/dL
  - pattern: Glicose
    test_code: GLU
    unit: mg/dL
    locale: pt-BR
`

const sourcesYAML = `sources:
  acme:
    date_format: "2006-01-02"
    columns:
      patient_id: patient_id
      test_name: test_name
      unit: unit
      value: value
      collection_date: collection_date
  sislab:
    delimiter: ";"
    date_format: "02/01/2006"
    columns:
      patient_id: id_paciente
      test_name: exame
      unit: unidade
      value: resultado
      collection_date: data_coleta
`

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	vocabPath := writeFile(t, dir, "vocabulary.yaml", vocabularyYAML)
	sourcesPath := writeFile(t, dir, "sources.yaml", sourcesYAML)

	vocab, err := vocabulary.Load(vocabPath)
	if err != nil {
		t.Fatalf("load vocabulary: %v", err)
	}
	sources, err := ingest.LoadSources(sourcesPath)
	if err != nil {
		t.Fatalf("load sources: %v", err)
	}

	return &testEnv{
		Dir:     dir,
		Store:   exam.NewCSVRepo(filepath.Join(dir, "consolidated.csv")),
		Vocab:   vocab,
		Sources: sources,
	}
}

// newPipeline builds a pipeline the way one CLI invocation would, so
// consecutive calls model consecutive process runs against the same store.
func (env *testEnv) newPipeline() *consolidate.Pipeline {
	return consolidate.New(env.Vocab, env.Sources, env.Store, consolidate.Options{
		Logger: zerolog.Nop(),
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func readStore(t *testing.T, env *testEnv) string {
	t.Helper()
	data, err := os.ReadFile(env.Store.Path())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	return string(data)
}
