package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	mockProvider
	calls int32
	texts int32
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&c.calls, 1)
	atomic.AddInt32(&c.texts, int32(len(texts)))
	return c.mockProvider.Embed(ctx, texts)
}

func TestCachedEmbeddingProviderDisabledPassesThrough(t *testing.T) {
	inner := &countingProvider{mockProvider: mockProvider{name: "m", dim: 2}}
	c := NewCachedEmbeddingProvider(inner, nil, nil)

	out, err := c.Embed(context.Background(), []string{"ab", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 0}, {1, 0}}, out)
	assert.Equal(t, "m-cached", c.Name())
	assert.Equal(t, int32(1), inner.calls)
}

func TestCacheKeyDependsOnNamespace(t *testing.T) {
	a := NewCachedEmbeddingProvider(nil, nil, &EmbeddingCacheConfig{KeyPrefix: "p:", Namespace: "bge-m3"})
	b := NewCachedEmbeddingProvider(nil, nil, &EmbeddingCacheConfig{KeyPrefix: "p:", Namespace: "other"})

	assert.NotEqual(t, a.cacheKey("q"), b.cacheKey("q"))
	assert.Equal(t, a.cacheKey("q"), a.cacheKey("q"))
	assert.Len(t, a.cacheKey("q"), len("p:")+64)
}

// 需要本地 Redis：docker run -d -p 6379:6379 redis:7-alpine
func TestCachedEmbeddingProviderWithRedis(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:6379", DB: 15})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis 不可用，跳过测试: %v", err)
	}

	prefix := "qgpt:test:" + time.Now().Format("150405.000000") + ":"
	defer func() {
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	}()

	inner := &countingProvider{mockProvider: mockProvider{name: "m", dim: 2}}
	c := NewCachedEmbeddingProvider(inner, rdb, &EmbeddingCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: prefix, Namespace: "m"})

	first, err := c.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	second, err := c.Embed(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []float32{3, 0}, second[1])
	assert.Equal(t, int32(2), inner.calls)
	assert.Equal(t, int32(3), inner.texts)
}
