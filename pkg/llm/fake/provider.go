// Package fake 提供确定性的本地 Embedding 供应商，用于测试与离线演练。
//
// 向量由分词后的 FNV 哈希桶计数归一化得到：相同文本得到相同向量，
// 共享词越多的文本余弦相似度越高。
package fake

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/kart-io/qgpt/pkg/llm"
)

const ProviderName = "fake"

func init() {
	llm.RegisterEmbeddingProvider(ProviderName, func(config map[string]any) (llm.EmbeddingProvider, error) {
		dim := 1024
		if v, ok := config["dim"].(int); ok && v > 0 {
			dim = v
		}
		return New(dim), nil
	})
}

// Provider 哈希词袋向量供应商。
type Provider struct {
	dim   int
	calls atomic.Int64
}

// New 创建指定维度的供应商。
func New(dim int) *Provider {
	return &Provider{dim: dim}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// Embed 为每个文本生成单位向量；空文本得到零向量。
func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.vector(text)
	}
	return out, nil
}

// Calls 返回 Embed 调用次数。
func (p *Provider) Calls() int {
	return int(p.calls.Load())
}

// EmbedSingle 为单个文本生成向量。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedSingleVia(ctx, p, text)
}

func (p *Provider) vector(text string) []float32 {
	v := make([]float32, p.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(p.dim)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}
