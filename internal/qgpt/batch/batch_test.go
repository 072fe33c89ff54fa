package batch_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qgpt/internal/qgpt/batch"
	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/embedder"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/llm/fake"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

const testDim = 1024

type fixture struct {
	base      string
	catalog   *store.SQLiteCatalog
	emb       *embedder.Embedder
	indexer   *biz.Indexer
	evaluator *batch.Evaluator
	config    *batch.Config
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{base: base}
	f.catalog = store.NewSQLiteCatalog(filepath.Join(base, "db"), nil)
	t.Cleanup(func() { _ = f.catalog.Close() })
	f.emb = embedder.New(fake.New(testDim), testDim)

	resolver := identity.NewResolver("Corpora")
	icfg := biz.DefaultIndexerConfig()
	icfg.CorpusDir = filepath.Join(base, "Corpora")
	icfg.Dim = testDim
	f.indexer = biz.NewIndexer(f.catalog, f.emb, resolver, icfg)

	f.config = &batch.Config{
		CorpusDir: icfg.CorpusDir,
		TestDir:   filepath.Join(base, "tests"),
		OutputDir: filepath.Join(base, "out"),
		Workers:   workers,
	}
	f.evaluator = batch.NewEvaluator(f.catalog, f.emb, resolver, f.config)
	return f
}

func writeFile(t *testing.T, path string, v any) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// buildCorpus 写入并构建一个语料库，第 i 条记录描述 topic<i>，文件名 t<i>.csv。
func (f *fixture) buildCorpus(t *testing.T, rel string, n int) *biz.BuildReport {
	t.Helper()
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"id":        i,
			"Text":      fmt.Sprintf("table about topic%d", i),
			"FileName":  fmt.Sprintf("t%d.csv", i),
			"SheetName": "Sheet1",
		}
	}
	path := writeFile(t, filepath.Join(f.base, "Corpora", rel), items)
	report, err := f.indexer.Build(context.Background(), path, false)
	require.NoError(t, err)
	return report
}

func (f *fixture) writeTests(t *testing.T, name string, cases []batch.TestCase) string {
	t.Helper()
	return writeFile(t, filepath.Join(f.config.TestDir, name), cases)
}

func TestMatchRule(t *testing.T) {
	r, ok := batch.MatchRule(batch.DefaultRules, "FetaQA_test")
	require.True(t, ok)
	assert.Equal(t, "Table5_Single_Table_Retrieval_QGpT", r.CorpusPattern)

	_, ok = batch.MatchRule(batch.DefaultRules, "Spider_test")
	assert.False(t, ok)
}

func TestMatchCorpusToTest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	report := f.buildCorpus(t, "Table7_OTTQA/ottqa.json", 3)

	// 语料存在但未构建
	path := filepath.Join(f.base, "Corpora", "Table1_mimo_table_length_variation", "mimo_en.json")
	writeFile(t, path, []map[string]any{{"id": 1, "Text": "x"}})

	got, ok := f.evaluator.MatchCorpusToTest(ctx, "tests/OTT-QA_test.json")
	require.True(t, ok)
	assert.Equal(t, report.DBName, got.DBName)
	assert.Equal(t, report.CollectionName, got.CollectionName)

	_, ok = f.evaluator.MatchCorpusToTest(ctx, "tests/MiMoTable-English_test.json")
	assert.False(t, ok, "database not built")

	_, ok = f.evaluator.MatchCorpusToTest(ctx, "tests/Spider_test.json")
	assert.False(t, ok, "no rule")
}

func TestEvaluateTestFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	report := f.buildCorpus(t, "Table7_OTTQA/ottqa.json", 12)

	cases := make([]batch.TestCase, 12)
	for i := range cases {
		cases[i] = batch.TestCase{
			Question:        fmt.Sprintf("topic%d", i),
			SpreadsheetList: []string{fmt.Sprintf("dir/t%d.csv", i)},
		}
	}
	cases[11].SpreadsheetList = nil
	file := f.writeTests(t, "OTT-QA_test.json", cases)

	summary, err := f.evaluator.EvaluateTestFile(ctx, file, report.DBName, "", 1)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.TotalQueries)
	assert.Equal(t, report.DBName, summary.DBPath)
	assert.Equal(t, report.CollectionName, summary.CollectionName)
	require.Len(t, summary.DetailedResults, 12)

	for i, r := range summary.DetailedResults[:11] {
		require.True(t, r.HasMetrics(), "query %d", i)
		assert.Equal(t, 1, r.ResultsCount)
		assert.Equal(t, fmt.Sprintf("t%d.csv", i), r.Results[0].FileName)
		assert.InDelta(t, 1, r.RecallAtK, 1e-9)
	}
	assert.False(t, summary.DetailedResults[11].HasMetrics())
	assert.InDelta(t, 11.0/12.0, summary.AvgRecallAtK, 1e-9)
	assert.InDelta(t, 11.0/12.0, summary.AvgPrecisionAtK, 1e-9)

	path, err := f.evaluator.SaveSummary(summary)
	require.NoError(t, err)
	assert.Equal(t, "evaluation_OTT-QA_test.json", filepath.Base(path))
	assert.FileExists(t, path)
}

func TestEvaluateTestFileErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	report := f.buildCorpus(t, "Table7_OTTQA/ottqa.json", 2)

	_, err := f.evaluator.EvaluateTestFile(ctx, filepath.Join(f.base, "missing.json"), report.DBName, "", 5)
	assert.True(t, stderrors.Is(err, errors.ErrTestFileInvalid))

	bad := filepath.Join(f.base, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"question": "not a list"}`), 0o644))
	_, err = f.evaluator.EvaluateTestFile(ctx, bad, report.DBName, "", 5)
	assert.True(t, stderrors.Is(err, errors.ErrTestFileInvalid))

	good := f.writeTests(t, "x.json", []batch.TestCase{{Question: "q"}})
	_, err = f.evaluator.EvaluateTestFile(ctx, good, "qgpt_nope.db", "", 5)
	assert.True(t, stderrors.Is(err, errors.ErrDatabaseNotFound))

	_, err = f.evaluator.EvaluateTestFile(ctx, good, report.DBName, "other_collection", 5)
	assert.True(t, stderrors.Is(err, errors.ErrCollectionNotFound))
}

func TestEvaluateTestFileExplicitCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	report := f.buildCorpus(t, "Table7_OTTQA/ottqa.json", 3)
	file := f.writeTests(t, "OTT-QA_test.json", []batch.TestCase{
		{Question: "topic1", SpreadsheetList: []string{"t1.csv"}},
	})

	summary, err := f.evaluator.EvaluateTestFile(ctx, file, report.DBName, report.CollectionName, 1)
	require.NoError(t, err)
	assert.Equal(t, report.CollectionName, summary.CollectionName)
	assert.InDelta(t, 1, summary.AvgRecallAtK, 1e-9)
}

func TestRunBatch(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, workers)
			f.buildCorpus(t, "Table7_OTTQA/ottqa.json", 4)
			f.buildCorpus(t, "Table6_Multi_Table_Retrieval_2_tables/mmqa.json", 4)

			f.writeTests(t, "OTT-QA_test.json", []batch.TestCase{
				{Question: "topic1", SpreadsheetList: []string{"t1.csv"}},
				{Question: "topic2", SpreadsheetList: []string{"t2.csv", "t9.csv"}},
			})
			f.writeTests(t, "MMQA-2tables_test.json", []batch.TestCase{
				{Question: "topic3", SpreadsheetList: []string{"t3.csv"}},
			})
			f.writeTests(t, "Spider_test.json", []batch.TestCase{{Question: "topic0"}})
			require.NoError(t, os.WriteFile(filepath.Join(f.config.TestDir, "notes.txt"), []byte("x"), 0o644))

			results, err := f.evaluator.RunBatch(ctx, 2, true)
			require.NoError(t, err)
			require.Len(t, results, 2)
			require.Contains(t, results, "OTT-QA_test")
			require.Contains(t, results, "MMQA-2tables_test")

			ott := results["OTT-QA_test"]
			assert.Equal(t, 2, ott.TotalQueries)
			assert.Equal(t, 2, ott.K)
			assert.InDelta(t, (1+0.5)/2.0, ott.AvgRecallAtK, 1e-9)
			assert.NotEmpty(t, ott.RunID)
			assert.Equal(t, ott.RunID, results["MMQA-2tables_test"].RunID)

			var saved map[string]map[string]any
			require.NoError(t, json.ReadFile(filepath.Join(f.config.OutputDir, batch.BatchFileName(2)), &saved))
			assert.Len(t, saved, 2)
			assert.Contains(t, saved["OTT-QA_test"], "detailed_results")
		})
	}
}

func TestRunBatchWithoutTests(t *testing.T) {
	f := newFixture(t, 1)
	results, err := f.evaluator.RunBatch(context.Background(), 5, true)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoFileExists(t, filepath.Join(f.config.OutputDir, batch.BatchFileName(5)))
}

func TestDumpAndRecall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	report := f.buildCorpus(t, "Table7_OTTQA/ottqa.json", 5)

	searcher, err := biz.OpenSearcher(ctx, f.catalog, f.emb, report.DBName, "")
	require.NoError(t, err)

	cases := []batch.TestCase{
		{Query: "topic0", AnswerTable: []string{"t0.csv"}},
		{Query: "topic4", AnswerTable: []string{"t4.csv", "t9.csv"}},
	}
	records, err := batch.Dump(ctx, searcher, cases, 3)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[1].QueryIndex)
	require.Len(t, records[0].Results, 3)
	assert.Equal(t, "t0.csv", records[0].Results[0].Entity.FileName)
	assert.Equal(t, "Sheet1", records[0].Results[0].Entity.SheetName)

	out := filepath.Join(f.base, "dump.json")
	require.NoError(t, json.WriteFile(out, records, 4))
	loaded, err := batch.LoadDump(out)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "topic4", loaded[1].Query)
	assert.Equal(t, records[1].Results[0].Entity, loaded[1].Results[0].Entity)

	curve, err := batch.RecallFromDump(loaded, cases, []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.75, 0.75}, curve.RecallAtK)
	assert.Equal(t, "75.00", curve.Average)

	_, err = batch.RecallFromDump(loaded, cases[:1], nil)
	assert.True(t, stderrors.Is(err, errors.ErrTestFileInvalid))
}

func TestTestCase(t *testing.T) {
	var cases []batch.TestCase
	require.NoError(t, json.Unmarshal([]byte(`[
		{"question": "q1", "spreadsheet_list": ["a.csv"]},
		{"query": "q2", "Answer_table": ["b.csv"]},
		{"question": "q3"}
	]`), &cases))

	assert.Equal(t, "q1", cases[0].Text())
	assert.Equal(t, []string{"a.csv"}, cases[0].GroundTruth())
	assert.Equal(t, "q2", cases[1].Text())
	assert.Equal(t, []string{"b.csv"}, cases[1].GroundTruth())
	assert.Empty(t, cases[2].GroundTruth())

	assert.Equal(t, "OTT-QA_test", batch.Stem("a/b/OTT-QA_test.json"))
	assert.True(t, strings.HasPrefix(batch.EvaluationFileName("x/y.json"), "evaluation_y"))
}

func TestLoadTestCasesNumericLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids_test.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"question": "q1", "spreadsheet_list": [17, "t2.csv", -3]},
		{"query": "q2", "Answer_table": [42]},
		{"question": "q3", "spreadsheet_list": null}
	]`), 0o644))

	cases, err := batch.LoadTestCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, []string{"17", "t2.csv", "-3"}, cases[0].GroundTruth())
	assert.Equal(t, []string{"42"}, cases[1].GroundTruth())
	assert.Empty(t, cases[2].GroundTruth())

	require.NoError(t, os.WriteFile(path, []byte(`[{"question": "q", "spreadsheet_list": [true]}]`), 0o644))
	_, err = batch.LoadTestCases(path)
	assert.True(t, stderrors.Is(err, errors.ErrTestFileInvalid))
}

func TestEvaluateTestFileByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	report := f.buildCorpus(t, "Table7_OTTQA/ottqa.json", 4)

	path := filepath.Join(f.base, "tests", "OTT-QA_ids.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`[{"question": "topic2", "spreadsheet_list": [2]}]`), 0o644))

	summary, err := f.evaluator.EvaluateTestFile(ctx, path, report.DBName, "", 1)
	require.NoError(t, err)
	require.Len(t, summary.DetailedResults, 1)
	require.True(t, summary.DetailedResults[0].HasMetrics())
	assert.Equal(t, 1, summary.DetailedResults[0].HitsByID)
}
