// Package embedder 在 llm.EmbeddingProvider 之上提供分批编码、输入截断与维度检查。
package embedder

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/llm"
)

// DefaultBatchSize 默认每批编码的文档数。
const DefaultBatchSize = 1000

// Embedder 文本编码器。
type Embedder struct {
	provider llm.EmbeddingProvider
	dim      int
}

// New 创建编码器，dim 为期望的向量维度，0 表示不检查。
func New(provider llm.EmbeddingProvider, dim int) *Embedder {
	return &Embedder{provider: provider, dim: dim}
}

// Dim 返回期望维度。
func (e *Embedder) Dim() int {
	return e.dim
}

// Provider 返回底层供应商。
func (e *Embedder) Provider() llm.EmbeddingProvider {
	return e.provider
}

// EmbedDocuments 按顺序分批编码文档。maxTokens > 0 时每条输入截断到 maxTokens 个字符，
// batchSize <= 0 时使用 DefaultBatchSize。
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string, maxTokens, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		batch := make([]string, end-start)
		for i, text := range texts[start:end] {
			batch[i] = Truncate(text, maxTokens)
		}

		vectors, err := e.provider.Embed(ctx, batch)
		if err != nil {
			return nil, errors.ErrEmbeddingFailed.WithCause(
				fmt.Errorf("%s: batch %d-%d: %w", e.provider.Name(), start, end, err))
		}
		if len(vectors) != len(batch) {
			return nil, errors.ErrEmbeddingFailed.WithMessagef(
				"%s returned %d vectors for %d inputs", e.provider.Name(), len(vectors), len(batch))
		}
		for i, v := range vectors {
			if err := e.checkDim(v); err != nil {
				return nil, fmt.Errorf("document %d: %w", start+i, err)
			}
		}
		out = append(out, vectors...)

		logger.Debugw("embedded batch", "provider", e.provider.Name(), "start", start, "end", end, "total", len(texts))
	}
	return out, nil
}

// EmbedQuery 编码单条查询。
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, errors.ErrEmbeddingFailed.WithCause(fmt.Errorf("%s: %w", e.provider.Name(), err))
	}
	if err := e.checkDim(v); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedQueries 一次请求编码多条查询。
func (e *Embedder) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	return e.EmbedDocuments(ctx, texts, 0, len(texts))
}

func (e *Embedder) checkDim(v []float32) error {
	if e.dim > 0 && len(v) != e.dim {
		return errors.ErrDimensionMismatch.WithMessagef("expected dimension %d, got %d", e.dim, len(v))
	}
	return nil
}

// Truncate 截断到最多 n 个字符，n <= 0 时原样返回。
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
