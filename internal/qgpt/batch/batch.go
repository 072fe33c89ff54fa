// Package batch 在测试集与语料库之间做批量检索评估。
//
// 测试文件按 MappingRule 映射到已构建的语料库，逐条查询检索并计算
// Recall@K / Precision@K，结果按测试文件名汇总。
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/internal/pkg/evaluator"
	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/corpus"
	"github.com/kart-io/qgpt/internal/qgpt/embedder"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/id"
	"github.com/kart-io/qgpt/pkg/infra/pool"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

// Summary 单个测试文件的评估汇总。
type Summary = evaluator.Summary[biz.SearchResult]

// Record 单条查询的评估记录。
type Record = evaluator.Record[biz.SearchResult]

// progressEvery 每处理多少条查询输出一次进度。
const progressEvery = 10

// Config 批量评估配置。
type Config struct {
	CorpusDir string
	TestDir   string
	OutputDir string
	Workers   int
	Rules     []MappingRule
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		CorpusDir: identity.DefaultRoot,
		TestDir:   "Test_Query_and_GroundTruth_Table",
		OutputDir: ".",
		Workers:   1,
		Rules:     DefaultRules,
	}
}

// Evaluator 批量评估器。
type Evaluator struct {
	catalog  store.Catalog
	embedder *embedder.Embedder
	resolver *identity.Resolver
	config   *Config
}

// NewEvaluator 创建批量评估器。
func NewEvaluator(catalog store.Catalog, emb *embedder.Embedder, resolver *identity.Resolver, config *Config) *Evaluator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Rules == nil {
		config.Rules = DefaultRules
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if resolver == nil {
		resolver = identity.NewResolver(identity.DefaultRoot)
	}
	return &Evaluator{catalog: catalog, embedder: emb, resolver: resolver, config: config}
}

// MatchCorpusToTest 按规则顺序为测试文件寻找已构建的语料库：
// 取第一个名称包含规则模式且数据库已存在的语料。
func (e *Evaluator) MatchCorpusToTest(ctx context.Context, testFile string) (*identity.Identity, bool) {
	stem := Stem(testFile)

	var files []corpus.File
	discovered := false
	for _, rule := range e.config.Rules {
		if !strings.Contains(stem, rule.TestKey) {
			continue
		}
		if !discovered {
			var err error
			files, err = corpus.Discover(e.config.CorpusDir, e.resolver)
			if err != nil {
				logger.Warnw("failed to discover corpora", "dir", e.config.CorpusDir, "error", err)
				return nil, false
			}
			discovered = true
		}

		for _, f := range files {
			if !strings.Contains(f.CorpusName, rule.CorpusPattern) {
				continue
			}
			ok, err := e.catalog.Exists(ctx, f.DBName)
			if err != nil {
				logger.Warnw("failed to check database", "db", f.DBName, "error", err)
				continue
			}
			if ok {
				found := f.Identity
				return &found, true
			}
		}
	}
	return nil, false
}

// EvaluateTestFile 对测试文件中的每条查询检索前 k 条结果并评估。collection 为空时
// 由数据库名推导。
func (e *Evaluator) EvaluateTestFile(ctx context.Context, testFile, dbName, collection string, k int) (*Summary, error) {
	cases, err := LoadTestCases(testFile)
	if err != nil {
		return nil, err
	}

	searcher, err := biz.OpenSearcher(ctx, e.catalog, e.embedder, dbName, collection)
	if err != nil {
		return nil, err
	}

	logger.Infow("evaluating test file", "file", filepath.Base(testFile), "queries", len(cases),
		"db", dbName, "collection", searcher.Collection())

	records := make([]Record, 0, len(cases))
	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := searcher.Search(ctx, c.Text(), k, nil)
		if err != nil {
			return nil, fmt.Errorf("query %d of %s: %w", i, filepath.Base(testFile), err)
		}
		records = append(records, evaluator.EvaluateQuery(c.Text(), results, c.GroundTruth()))

		if (i+1)%progressEvery == 0 {
			logger.Infof("progress: %d/%d", i+1, len(cases))
		}
	}

	return evaluator.NewSummary(testFile, dbName, searcher.Collection(), k, records), nil
}

// RunBatch 评估测试目录下的全部测试文件。没有匹配语料或评估失败的文件
// 记录日志后跳过。persist 为 true 且有结果时写出汇总文件。
func (e *Evaluator) RunBatch(ctx context.Context, k int, persist bool) (map[string]*Summary, error) {
	files, err := ListTestFiles(e.config.TestDir)
	if err != nil {
		return nil, err
	}
	results := make(map[string]*Summary)
	if len(files) == 0 {
		logger.Warnw("no test files found", "dir", e.config.TestDir)
		return results, nil
	}

	runID := id.NewRunID()
	logger.Infow("starting batch evaluation", "files", len(files), "top_k", k, "workers", e.config.Workers, "run_id", runID)

	p, err := pool.NewPool("qgpt-batch", &pool.Config{
		Capacity:       e.config.Workers,
		ExpiryDuration: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	defer p.Release()

	var mu sync.Mutex
	err = p.ForEach(ctx, len(files), func(i int) {
		file := files[i]
		name := filepath.Base(file)

		target, ok := e.MatchCorpusToTest(ctx, file)
		if !ok {
			logger.Warnw("skipping test file: no matching corpus database", "file", name)
			return
		}

		summary, err := e.EvaluateTestFile(ctx, file, target.DBName, "", k)
		if err != nil {
			logger.Errorw("evaluation failed", "file", name, "error", err)
			return
		}
		summary.RunID = runID

		logger.Infow("evaluation finished", "file", name,
			fmt.Sprintf("recall@%d", k), fmt.Sprintf("%.4f", summary.AvgRecallAtK),
			fmt.Sprintf("precision@%d", k), fmt.Sprintf("%.4f", summary.AvgPrecisionAtK))

		mu.Lock()
		results[Stem(file)] = summary
		mu.Unlock()
	})
	if err != nil {
		return results, err
	}

	if persist && len(results) > 0 {
		path := filepath.Join(e.config.OutputDir, BatchFileName(k))
		if err := json.WriteFile(path, results, 2); err != nil {
			return results, fmt.Errorf("save batch results: %w", err)
		}
		logger.Infow("batch results saved", "path", path)
	}
	return results, nil
}

// SaveSummary 将单个测试文件的评估结果写到 evaluation_<stem>.json。
func (e *Evaluator) SaveSummary(summary *Summary) (string, error) {
	path := filepath.Join(e.config.OutputDir, EvaluationFileName(summary.TestFile))
	if err := json.WriteFile(path, summary, 2); err != nil {
		return "", err
	}
	return path, nil
}

// BatchFileName 批量评估结果文件名。
func BatchFileName(k int) string {
	return fmt.Sprintf("batch_evaluation_results_top%d.json", k)
}

// EvaluationFileName 单文件评估结果文件名。
func EvaluationFileName(testFile string) string {
	return fmt.Sprintf("evaluation_%s.json", Stem(testFile))
}
