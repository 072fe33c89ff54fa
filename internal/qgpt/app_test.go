package qgpt_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qgpt/internal/pkg/evaluator"
	"github.com/kart-io/qgpt/internal/qgpt"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

type workspace struct {
	base   string
	corpus string
	db     string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	base := t.TempDir()
	w := &workspace{
		base:   base,
		corpus: filepath.Join(base, "Corpora", "Table7_OTTQA", "ottqa.json"),
	}
	w.db = identity.NewResolver("Corpora").Resolve(w.corpus).DBName

	items := make([]map[string]any, 4)
	for i := range items {
		items[i] = map[string]any{
			"id":        i,
			"Text":      fmt.Sprintf("topic%d", i),
			"FileName":  fmt.Sprintf("t%d.csv", i),
			"SheetName": "Sheet1",
		}
	}
	writeJSON(t, w.corpus, items)
	writeJSON(t, filepath.Join(base, "tests", "OTT-QA_test.json"), []map[string]any{
		{"question": "topic1", "spreadsheet_list": []string{"t1.csv"}},
		{"question": "topic3", "spreadsheet_list": []string{"dir/t3.csv", "t0.csv"}},
	})
	writeJSON(t, filepath.Join(base, "recall_test.json"), []map[string]any{
		{"query": "topic1", "Answer_table": []string{"t1.csv"}},
		{"query": "topic2", "Answer_table": []string{"t2.csv"}},
	})
	return w
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func (w *workspace) path(rel string) string {
	return filepath.Join(w.base, rel)
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := qgpt.NewApp().Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args,
		"--qgpt.corpus-dir", w.path("Corpora"),
		"--qgpt.test-dir", w.path("tests"),
		"--qgpt.db-dir", w.path("db"),
		"--qgpt.output-dir", w.path("out"),
		"--embedding.provider", "fake",
	))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPipeline(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "build", w.corpus)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.FileExists(t, filepath.Join(w.path("db"), w.db))

	out, err = w.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, w.db)
	assert.Contains(t, out, "built")

	out, err = w.run(t, "list-dbs")
	require.NoError(t, err)
	assert.Contains(t, out, w.db)

	t.Run("search", func(t *testing.T) {
		out, err := w.run(t, "search", "topic2", "--db", w.db, "--top-k", "2", "--format", "json")
		require.NoError(t, err)

		var got struct {
			Query   string `json:"query"`
			Results []struct {
				Rank     int    `json:"rank"`
				Filename string `json:"filename"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got), out)
		assert.Equal(t, "topic2", got.Query)
		require.Len(t, got.Results, 2)
		assert.Equal(t, 1, got.Results[0].Rank)
		assert.Equal(t, "t2.csv", got.Results[0].Filename)
	})

	t.Run("search requires db", func(t *testing.T) {
		_, err := w.run(t, "search", "topic2")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrAmbiguousTarget)
	})

	t.Run("evaluate query", func(t *testing.T) {
		out, err := w.run(t, "evaluate", "topic1", "--db", w.db, "--ground-truth", "x/t1.csv,t9.csv", "-k", "1")
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got), out)
		assert.EqualValues(t, 1, got["hits_by_file"])
		assert.InDelta(t, 0.5, got["recall_at_k"], 1e-9)
		assert.InDelta(t, 1.0, got["precision_at_k"], 1e-9)
	})

	t.Run("evaluate test file", func(t *testing.T) {
		_, err := w.run(t, "evaluate", "--test-file", w.path("tests/OTT-QA_test.json"), "--save", "-k", "1")
		require.NoError(t, err)

		var summary map[string]any
		require.NoError(t, json.ReadFile(filepath.Join(w.path("out"), "evaluation_OTT-QA_test.json"), &summary))
		assert.Equal(t, w.db, summary["db_path"])
		assert.EqualValues(t, 2, summary["total_queries"])
		assert.InDelta(t, 0.75, summary["avg_recall_at_k"], 1e-9)
	})

	t.Run("evaluate batch", func(t *testing.T) {
		out, err := w.run(t, "evaluate", "--batch", "--save", "--workers", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "OTT-QA_test")
		assert.FileExists(t, filepath.Join(w.path("out"), "batch_evaluation_results_top5.json"))
	})

	t.Run("evaluate needs one mode", func(t *testing.T) {
		_, err := w.run(t, "evaluate", "topic1", "--batch")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrQGPTConfig)
	})

	t.Run("dump and recall", func(t *testing.T) {
		dump := w.path("out/search_results.json")
		_, err := w.run(t, "dump", "--test-file", w.path("recall_test.json"), "--db", w.db, "--output", dump)
		require.NoError(t, err)

		data, err := os.ReadFile(dump)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), "\n    {"), "dump is indented with 4 spaces")

		var records []map[string]any
		require.NoError(t, json.Unmarshal(data, &records))
		require.Len(t, records, 2)
		assert.Len(t, records[0]["results"], 4)

		curvePath := w.path("out/recall.json")
		_, err = w.run(t, "recall", "--results", dump, "--test-file", w.path("recall_test.json"), "--output", curvePath, "--k", "1,3")
		require.NoError(t, err)

		var curve evaluator.Curve
		require.NoError(t, json.ReadFile(curvePath, &curve))
		assert.Equal(t, []int{1, 3}, curve.K)
		assert.Equal(t, []float64{1, 1}, curve.RecallAtK)
		assert.Equal(t, "100.00", curve.Average)
	})
}

func TestBuildRequiresTarget(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "build")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrQGPTConfig)
}

func TestBuildAll(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.run(t, "build", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Table7_OTTQA")

	out, err = w.run(t, "build", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "SKIP")
}

func TestEvaluateTestFileCollection(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "build", w.corpus)
	require.NoError(t, err)
	testFile := filepath.Join(w.path("tests"), "OTT-QA_test.json")

	_, err = w.run(t, "evaluate", "--test-file", testFile, "--collection", "other")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAmbiguousTarget)

	_, err = w.run(t, "evaluate", "--test-file", testFile, "--db", w.db, "--collection", "other")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCollectionNotFound)

	collection := identity.NewResolver("Corpora").Resolve(w.corpus).CollectionName
	out, err := w.run(t, "evaluate", "--test-file", testFile, "--db", w.db, "--collection", collection, "-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, w.db)
}
