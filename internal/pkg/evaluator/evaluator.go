// Package evaluator 提供表格检索的评估指标。
//
// 单条查询的指标：
//   - HitsByID：真值中与某条结果 original_id 相同的条目数，仅用于诊断
//   - HitsByFile：真值文件名（取最后一个 "/" 之后并去除首尾空白）出现在检索文件集合中的条目数
//   - Recall@K = HitsByFile / len(真值)
//   - Precision@K = HitsByFile / len(结果)
//
// 所有除零情况均取 0。
//
// 使用示例:
//
//	record := evaluator.EvaluateQuery(query, results, groundTruth)
//	avg := evaluator.Aggregate(records)
package evaluator

import (
	"strings"
	"time"
)

// Retrieved 参与评估的检索结果。
type Retrieved interface {
	// RetrievedID 返回结果的原始 ID。
	RetrievedID() string
	// RetrievedFile 返回结果所属的文件名。
	RetrievedFile() string
}

// Metrics 有真值时计算的指标。
type Metrics struct {
	GroundTruth   []string `json:"ground_truth"`
	HitsByID      int      `json:"hits_by_id"`
	HitsByFile    int      `json:"hits_by_file"`
	RecallAtK     float64  `json:"recall_at_k"`
	PrecisionAtK  float64  `json:"precision_at_k"`
	HitRateByID   float64  `json:"hit_rate_by_id"`
	HitRateByFile float64  `json:"hit_rate_by_file"`
}

// Record 单条查询的评估记录，真值为空时 Metrics 为 nil。
type Record[R Retrieved] struct {
	Query        string `json:"query"`
	ResultsCount int    `json:"results_count"`
	Results      []R    `json:"results"`
	*Metrics
}

// HasMetrics 报告记录是否带有指标。
func (r *Record[R]) HasMetrics() bool {
	return r.Metrics != nil
}

// NormalizeFile 取最后一个 "/" 之后的部分并去除首尾空白。
func NormalizeFile(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return strings.TrimSpace(path)
}

// EvaluateQuery 评估一条查询的检索结果。
func EvaluateQuery[R Retrieved](query string, results []R, groundTruth []string) Record[R] {
	if results == nil {
		results = []R{}
	}
	record := Record[R]{
		Query:        query,
		ResultsCount: len(results),
		Results:      results,
	}
	if len(groundTruth) == 0 {
		return record
	}

	ids := make(map[string]struct{}, len(results))
	files := make(map[string]struct{}, len(results))
	for _, r := range results {
		ids[r.RetrievedID()] = struct{}{}
		files[NormalizeFile(r.RetrievedFile())] = struct{}{}
	}

	m := &Metrics{GroundTruth: groundTruth}
	for _, gt := range groundTruth {
		if _, ok := ids[gt]; ok {
			m.HitsByID++
		}
		if _, ok := files[NormalizeFile(gt)]; ok {
			m.HitsByFile++
		}
	}

	m.RecallAtK = ratio(m.HitsByFile, len(groundTruth))
	m.PrecisionAtK = ratio(m.HitsByFile, len(results))
	m.HitRateByID = ratio(m.HitsByID, len(groundTruth))
	m.HitRateByFile = m.RecallAtK

	record.Metrics = m
	return record
}

// Averages 一组查询的平均指标。
type Averages struct {
	Recall    float64 `json:"avg_recall_at_k"`
	Precision float64 `json:"avg_precision_at_k"`
}

// Aggregate 对全部记录求平均，没有指标的记录按 0 计入。空输入返回 0。
func Aggregate[R Retrieved](records []Record[R]) Averages {
	if len(records) == 0 {
		return Averages{}
	}
	var recall, precision float64
	for _, r := range records {
		if r.Metrics == nil {
			continue
		}
		recall += r.RecallAtK
		precision += r.PrecisionAtK
	}
	n := float64(len(records))
	return Averages{Recall: recall / n, Precision: precision / n}
}

// Summary 一个测试文件的评估汇总。
type Summary[R Retrieved] struct {
	TestFile        string      `json:"test_file"`
	DBPath          string      `json:"db_path"`
	CollectionName  string      `json:"collection_name"`
	TotalQueries    int         `json:"total_queries"`
	AvgRecallAtK    float64     `json:"avg_recall_at_k"`
	AvgPrecisionAtK float64     `json:"avg_precision_at_k"`
	AvgHitRate      float64     `json:"avg_hit_rate"`
	AvgPrecision    float64     `json:"avg_precision"`
	K               int         `json:"k"`
	RunID           string      `json:"run_id,omitempty"`
	EvaluatedAt     time.Time   `json:"evaluated_at"`
	DetailedResults []Record[R] `json:"detailed_results"`
}

// NewSummary 汇总一组记录，avg_hit_rate 与 avg_precision 为兼容字段。
func NewSummary[R Retrieved](testFile, dbPath, collection string, k int, records []Record[R]) *Summary[R] {
	avg := Aggregate(records)
	if records == nil {
		records = []Record[R]{}
	}
	return &Summary[R]{
		TestFile:        testFile,
		DBPath:          dbPath,
		CollectionName:  collection,
		TotalQueries:    len(records),
		AvgRecallAtK:    avg.Recall,
		AvgPrecisionAtK: avg.Precision,
		AvgHitRate:      avg.Recall,
		AvgPrecision:    avg.Precision,
		K:               k,
		EvaluatedAt:     time.Now().UTC(),
		DetailedResults: records,
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
