package evaluator

import (
	"fmt"
)

// DefaultKs 召回曲线默认的 K 值。
var DefaultKs = []int{1, 3, 5, 10}

// Curve 多个 K 下的平均召回率。Average 为各 Recall@k 均值的百分数，保留两位小数。
type Curve struct {
	RecallAtK []float64 `json:"Recall@k"`
	K         []int     `json:"k"`
	Average   string    `json:"Average"`
}

// RecallAtK 取排序列表前 k 个，按集合语义计算召回率；真值为空时为 0。
func RecallAtK(ranked []string, groundTruth []string, k int) float64 {
	gt := make(map[string]struct{}, len(groundTruth))
	for _, g := range groundTruth {
		gt[g] = struct{}{}
	}
	if len(gt) == 0 {
		return 0
	}

	retrieved := make(map[string]struct{}, k)
	for i, r := range ranked {
		if i >= k {
			break
		}
		retrieved[r] = struct{}{}
	}

	hits := 0
	for r := range retrieved {
		if _, ok := gt[r]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(gt))
}

// RecallCurve 对每个 k 计算所有查询 Recall@k 的平均值。
// rankedLists 与 groundTruths 按下标一一对应。
func RecallCurve(rankedLists [][]string, groundTruths [][]string, ks []int) (Curve, error) {
	if len(rankedLists) != len(groundTruths) {
		return Curve{}, fmt.Errorf("got %d ranked lists but %d ground truth sets", len(rankedLists), len(groundTruths))
	}

	curve := Curve{RecallAtK: make([]float64, len(ks)), K: ks}
	for i, k := range ks {
		var total float64
		for q := range rankedLists {
			total += RecallAtK(rankedLists[q], groundTruths[q], k)
		}
		if len(rankedLists) > 0 {
			curve.RecallAtK[i] = total / float64(len(rankedLists))
		}
	}

	var sum float64
	for _, r := range curve.RecallAtK {
		sum += r
	}
	avg := 0.0
	if len(curve.RecallAtK) > 0 {
		avg = sum / float64(len(curve.RecallAtK))
	}
	curve.Average = fmt.Sprintf("%.2f", avg*100)
	return curve, nil
}
