package biz

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/internal/qgpt/corpus"
	"github.com/kart-io/qgpt/internal/qgpt/embedder"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/errors"
)

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// CorpusDir 语料根目录，用于批量构建和同级冲突检查。
	CorpusDir string
	// Dim 向量维度。
	Dim int
	// Metric 新建集合的距离度量。
	Metric store.Metric
	// EmbedBatchSize 每批编码的文档数。
	EmbedBatchSize int
	// InsertBatchSize 每次写入的记录数。
	InsertBatchSize int
	// MaxTokens 编码输入截断长度，0 表示不截断。
	MaxTokens int
	// MaxTextLength 存储文本截断长度。
	MaxTextLength int
}

// DefaultIndexerConfig 返回默认配置。
func DefaultIndexerConfig() *IndexerConfig {
	return &IndexerConfig{
		CorpusDir:       identity.DefaultRoot,
		Dim:             1024,
		Metric:          store.MetricCosine,
		EmbedBatchSize:  embedder.DefaultBatchSize,
		InsertBatchSize: 1000,
		MaxTokens:       8192,
		MaxTextLength:   8192,
	}
}

// BuildReport 单个语料库的构建结果。
type BuildReport struct {
	Path string `json:"path"`
	identity.Identity
	Skipped  bool          `json:"skipped"`
	Records  int           `json:"records"`
	Inserted int           `json:"inserted"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Succeeded 构建成功或因已存在而跳过。
func (r *BuildReport) Succeeded() bool {
	return r.Err == nil
}

// Indexer 负责语料索引。
type Indexer struct {
	catalog  store.Catalog
	embedder *embedder.Embedder
	resolver *identity.Resolver
	config   *IndexerConfig
}

// NewIndexer 创建索引器实例。
func NewIndexer(catalog store.Catalog, emb *embedder.Embedder, resolver *identity.Resolver, config *IndexerConfig) *Indexer {
	if config == nil {
		config = DefaultIndexerConfig()
	}
	if resolver == nil {
		resolver = identity.NewResolver(identity.DefaultRoot)
	}
	return &Indexer{catalog: catalog, embedder: emb, resolver: resolver, config: config}
}

// EnsureCollection 准备集合：已存在且不覆盖时不做任何事，覆盖时先删除再重建。
func (i *Indexer) EnsureCollection(ctx context.Context, s store.VectorStore, name string, dim int, overwrite bool) error {
	exists, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if !overwrite {
			return nil
		}
		if err := s.DropCollection(ctx, name); err != nil {
			return err
		}
		logger.Infow("dropped existing collection", "collection", name)
	}
	return s.CreateCollection(ctx, name, dim, i.config.Metric)
}

// BulkInsert 分块写入记录。某块失败时返回已写入条数与 ErrPartialWrite。
func (i *Indexer) BulkInsert(ctx context.Context, s store.VectorStore, name string, entries []store.Entry, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = len(entries)
	}

	inserted := 0
	for start := 0; start < len(entries); start += batchSize {
		end := min(start+batchSize, len(entries))
		n, err := s.Insert(ctx, name, entries[start:end])
		inserted += n
		if err != nil {
			return inserted, errors.ErrPartialWrite.
				WithMessagef("inserted %d of %d entries into %s", inserted, len(entries), name).
				WithCause(err)
		}
	}
	return inserted, nil
}

// Build 构建单个语料库的索引，并检查与同级语料的命名冲突。
func (i *Indexer) Build(ctx context.Context, path string, force bool) (*BuildReport, error) {
	id := i.resolver.Resolve(path)
	if err := i.checkSiblings(id); err != nil {
		return &BuildReport{Path: path, Identity: id, Err: err}, err
	}
	report := i.build(ctx, path, id, force)
	return report, report.Err
}

// BuildAll 构建语料根目录下的全部语料库。单个失败不影响其余语料，
// 与先前语料命名冲突的语料被拒绝。
func (i *Indexer) BuildAll(ctx context.Context, force bool) ([]BuildReport, error) {
	files, err := corpus.Discover(i.config.CorpusDir, i.resolver)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warnw("no corpus files found", "dir", i.config.CorpusDir)
		return nil, nil
	}
	logger.Infof("found %d corpus files", len(files))

	registry := identity.NewRegistry()
	reports := make([]BuildReport, 0, len(files))
	succeeded := 0
	for n, f := range files {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		logger.Infof("processing corpus %d/%d: %s", n+1, len(files), f.CorpusName)

		var report *BuildReport
		if err := registry.Claim(f.Identity); err != nil {
			logger.Errorw("corpus rejected", "corpus", f.CorpusName, "error", err)
			report = &BuildReport{Path: f.Path, Identity: f.Identity, Err: err}
		} else {
			report = i.build(ctx, f.Path, f.Identity, force)
		}
		if report.Succeeded() {
			succeeded++
		}
		reports = append(reports, *report)
	}

	logger.Infof("build finished: succeeded %d/%d", succeeded, len(files))
	for _, r := range reports {
		if r.Succeeded() {
			logger.Info(r.String())
		} else {
			logger.Error(r.String())
		}
	}
	return reports, nil
}

func (i *Indexer) checkSiblings(id identity.Identity) error {
	files, err := corpus.Discover(i.config.CorpusDir, i.resolver)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.CorpusName == id.CorpusName {
			continue
		}
		if f.DBName == id.DBName || f.CollectionName == id.CollectionName {
			return errors.ErrIdentityCollision.WithMessagef(
				"corpus %q and sibling %q both map to %s / %s", id.CorpusName, f.CorpusName, id.DBName, id.CollectionName)
		}
	}
	return nil
}

func (i *Indexer) build(ctx context.Context, path string, id identity.Identity, force bool) *BuildReport {
	start := time.Now()
	report := &BuildReport{Path: path, Identity: id}
	fail := func(err error) *BuildReport {
		report.Err = err
		report.Duration = time.Since(start)
		logger.Errorw("failed to build corpus", "corpus", id.CorpusName, "path", path, "error", err)
		return report
	}

	logger.Infow("building corpus", "corpus", id.CorpusName, "path", path, "db", id.DBName, "collection", id.CollectionName)

	if err := identity.Validate(id); err != nil {
		return fail(err)
	}
	if _, err := os.Stat(path); err != nil {
		return fail(errors.ErrCorpusNotFound.WithMessagef("corpus file %s not found", path).WithCause(err))
	}

	exists, err := i.catalog.Exists(ctx, id.DBName)
	if err != nil {
		return fail(err)
	}
	if exists && !force {
		logger.Infow("database already exists, skipping (use --force to rebuild)", "db", id.DBName)
		report.Skipped = true
		report.Duration = time.Since(start)
		return report
	}

	records, err := corpus.LoadAndValidate(path)
	if err != nil {
		return fail(err)
	}
	report.Records = len(records)
	logger.Infof("loaded %d table documents", len(records))

	texts := make([]string, len(records))
	for n, r := range records {
		texts[n] = corpus.PreprocessText(r.Text)
	}

	vectors, err := i.embedder.EmbedDocuments(ctx, texts, i.config.MaxTokens, i.config.EmbedBatchSize)
	if err != nil {
		return fail(err)
	}

	s, err := i.catalog.Open(ctx, id.DBName, true)
	if err != nil {
		return fail(err)
	}
	if err := i.EnsureCollection(ctx, s, id.CollectionName, i.config.Dim, true); err != nil {
		return fail(err)
	}

	entries := make([]store.Entry, len(records))
	for n, r := range records {
		entries[n] = store.Entry{
			LocalID:    int64(n),
			Vector:     vectors[n],
			Text:       embedder.Truncate(texts[n], i.config.MaxTextLength),
			OriginalID: r.ID,
			FileName:   r.FileName,
			SheetName:  r.SheetName,
		}
	}

	inserted, err := i.BulkInsert(ctx, s, id.CollectionName, entries, i.config.InsertBatchSize)
	report.Inserted = inserted
	if err != nil {
		return fail(err)
	}

	report.Duration = time.Since(start)
	logger.Infow("corpus built", "corpus", id.CorpusName, "db", id.DBName, "records", inserted, "duration", report.Duration)
	return report
}

// String 实现 fmt.Stringer。
func (r *BuildReport) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("FAIL %s: %v", r.CorpusName, r.Err)
	case r.Skipped:
		return fmt.Sprintf("SKIP %s (%s exists)", r.CorpusName, r.DBName)
	default:
		return fmt.Sprintf("OK   %s -> %s/%s (%d records)", r.CorpusName, r.DBName, r.CollectionName, r.Inserted)
	}
}
