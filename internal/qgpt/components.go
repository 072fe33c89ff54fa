package qgpt

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/internal/qgpt/batch"
	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/internal/qgpt/embedder"
	"github.com/kart-io/qgpt/internal/qgpt/identity"
	"github.com/kart-io/qgpt/internal/qgpt/store"
	"github.com/kart-io/qgpt/pkg/component/redis"
	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/llm"
	qgptopts "github.com/kart-io/qgpt/pkg/options/qgpt"

	// 注册 Embedding 供应商
	_ "github.com/kart-io/qgpt/pkg/llm/fake"
	_ "github.com/kart-io/qgpt/pkg/llm/huggingface"
	_ "github.com/kart-io/qgpt/pkg/llm/ollama"
	_ "github.com/kart-io/qgpt/pkg/llm/openai"
)

// components 一次命令运行共享的依赖，命令结束时统一关闭。
type components struct {
	opts     *Options
	catalog  store.Catalog
	embedder *embedder.Embedder
	resolver *identity.Resolver
	cache    *redis.Client
}

// newComponents 按配置创建存储目录与向量编码器。
func newComponents(ctx context.Context, opts *Options) (*components, error) {
	catalog, err := newCatalog(opts)
	if err != nil {
		return nil, err
	}

	c := &components{
		opts:     opts,
		catalog:  catalog,
		resolver: identity.NewResolver(opts.QGPT.CorpusRoot),
	}

	provider, err := c.newProvider(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.embedder = embedder.New(provider, opts.QGPT.EmbeddingDim)
	return c, nil
}

func newCatalog(opts *Options) (store.Catalog, error) {
	if opts.QGPT.Store == qgptopts.StoreMilvus {
		return store.NewMilvusCatalog(opts.Milvus), nil
	}
	return store.NewSQLiteCatalog(opts.QGPT.DBDir, opts.SQLite), nil
}

// newProvider 创建 Embedding 供应商。启用 Redis 时包装一层向量缓存，
// Redis 不可用只记录警告。
func (c *components) newProvider(ctx context.Context) (llm.EmbeddingProvider, error) {
	opts := c.opts
	cfg := opts.Embedding.ToConfigMap()
	cfg["dim"] = opts.QGPT.EmbeddingDim
	provider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, cfg)
	if err != nil {
		return nil, errors.ErrQGPTConfig.WithCause(err)
	}
	if !opts.Redis.Enabled {
		return provider, nil
	}

	client, err := redis.New(ctx, opts.Redis)
	if err != nil {
		logger.Warnw("embedding cache unavailable", "addr", opts.Redis.Addr(), "error", err)
		return provider, nil
	}
	c.cache = client
	logger.Infow("embedding cache enabled", "addr", opts.Redis.Addr(), "ttl", opts.Redis.TTL)

	return llm.NewCachedEmbeddingProvider(provider, client.Client(), &llm.EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       opts.Redis.TTL,
		KeyPrefix: opts.Redis.KeyPrefix,
		Namespace: opts.Embedding.Model,
	}), nil
}

func (c *components) indexer() *biz.Indexer {
	q := c.opts.QGPT
	metric, err := store.ParseMetric(q.Metric)
	if err != nil {
		metric = store.MetricCosine
	}
	return biz.NewIndexer(c.catalog, c.embedder, c.resolver, &biz.IndexerConfig{
		CorpusDir:       q.CorpusDir,
		Dim:             q.EmbeddingDim,
		Metric:          metric,
		EmbedBatchSize:  q.EmbedBatchSize,
		InsertBatchSize: q.InsertBatchSize,
		MaxTokens:       q.MaxTokens,
		MaxTextLength:   q.MaxTextLength,
	})
}

func (c *components) batchEvaluator(workers int) *batch.Evaluator {
	q := c.opts.QGPT
	if workers <= 0 {
		workers = q.Workers
	}
	return batch.NewEvaluator(c.catalog, c.embedder, c.resolver, &batch.Config{
		CorpusDir: q.CorpusDir,
		TestDir:   q.TestDir,
		OutputDir: q.OutputDir,
		Workers:   workers,
		Rules:     batch.DefaultRules,
	})
}

// Close 关闭存储与缓存连接。
func (c *components) Close() {
	if err := c.catalog.Close(); err != nil {
		logger.Warnw("failed to close catalog", "store", c.catalog.Name(), "error", err)
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			logger.Warnw("failed to close redis", "error", err)
		}
	}
}
