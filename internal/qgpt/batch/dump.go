package batch

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/internal/pkg/evaluator"
	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

// DumpEntity 检索结果中保留的字段。
type DumpEntity struct {
	FileName  string `json:"FileName"`
	SheetName string `json:"SheetName"`
}

// DumpHit 一条检索结果。
type DumpHit struct {
	ID       int64      `json:"id"`
	Distance float32    `json:"distance"`
	Entity   DumpEntity `json:"entity"`
}

// DumpRecord 一条查询的原始检索结果，供召回曲线计算使用。
type DumpRecord struct {
	QueryIndex int       `json:"query_index"`
	Query      string    `json:"query"`
	Results    []DumpHit `json:"results"`
}

// Dump 按顺序检索每条查询的前 k 条结果。
func Dump(ctx context.Context, searcher *biz.Searcher, cases []TestCase, k int) ([]DumpRecord, error) {
	fields := []string{store.FieldFileName, store.FieldSheetName}
	records := make([]DumpRecord, 0, len(cases))
	for i, c := range cases {
		results, err := searcher.Search(ctx, c.Text(), k, fields)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		hits := make([]DumpHit, len(results))
		for n, r := range results {
			hits[n] = DumpHit{
				ID:       r.ID,
				Distance: r.Distance,
				Entity:   DumpEntity{FileName: r.FileName, SheetName: r.SheetName},
			}
		}
		records = append(records, DumpRecord{QueryIndex: i, Query: c.Text(), Results: hits})

		if (i+1)%progressEvery == 0 {
			logger.Infof("progress: %d/%d", i+1, len(cases))
		}
	}
	return records, nil
}

// LoadDump 读取 Dump 输出的结果文件。
func LoadDump(path string) ([]DumpRecord, error) {
	var records []DumpRecord
	if err := json.ReadFile(path, &records); err != nil {
		return nil, errors.ErrTestFileInvalid.WithMessagef("search result file %s is invalid", path).WithCause(err)
	}
	return records, nil
}

// RecallFromDump 用检索结果与测试集计算召回曲线。结果按 query_index
// 对应测试集中的查询，文件名不做归一化。
func RecallFromDump(records []DumpRecord, cases []TestCase, ks []int) (evaluator.Curve, error) {
	if len(ks) == 0 {
		ks = evaluator.DefaultKs
	}

	ranked := make([][]string, len(records))
	truths := make([][]string, len(records))
	for i, r := range records {
		if r.QueryIndex < 0 || r.QueryIndex >= len(cases) {
			return evaluator.Curve{}, errors.ErrTestFileInvalid.WithMessagef(
				"query_index %d out of range for %d test cases", r.QueryIndex, len(cases))
		}
		files := make([]string, len(r.Results))
		for n, h := range r.Results {
			files[n] = h.Entity.FileName
		}
		ranked[i] = files
		truths[i] = cases[r.QueryIndex].GroundTruth()
	}

	curve, err := evaluator.RecallCurve(ranked, truths, ks)
	if err != nil {
		return curve, err
	}
	for i, k := range curve.K {
		logger.Infof("Recall@%d average score: %.2f", k, curve.RecallAtK[i]*100)
	}
	logger.Infof("average Recall@k is %s", curve.Average)
	return curve, nil
}
