package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolRejectsZeroCapacity(t *testing.T) {
	_, err := NewPool("bad", &Config{Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}

func TestForEachSingleWorkerIsSequential(t *testing.T) {
	p, err := NewPool("seq", nil)
	require.NoError(t, err)
	defer p.Release()

	var order []int
	require.NoError(t, p.ForEach(context.Background(), 20, func(i int) {
		order = append(order, i)
	}))

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, order)
	assert.Equal(t, int64(20), p.Stats().CompletedTasks)
}

func TestForEachParallel(t *testing.T) {
	p, err := NewPool("par", &Config{Capacity: 4})
	require.NoError(t, err)
	defer p.Release()

	var mu sync.Mutex
	seen := map[int]bool{}
	require.NoError(t, p.ForEach(context.Background(), 50, func(i int) {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	}))
	assert.Len(t, seen, 50)
}

func TestForEachStopsOnCancel(t *testing.T) {
	p, err := NewPool("cancel", nil)
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	err = p.ForEach(ctx, 100, func(i int) {
		if atomic.AddInt32(&ran, 1) == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt32(&ran), int32(100))
}

func TestPanicIsRecovered(t *testing.T) {
	var got interface{}
	done := make(chan struct{})
	p, err := NewPool("panic", &Config{Capacity: 1, PanicHandler: func(r interface{}) {
		got = r
		close(done)
	}})
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Submit(func() { panic("boom") }))
	<-done
	assert.Equal(t, "boom", got)
	assert.Equal(t, int64(1), p.Stats().PanicRecovered)
}

func TestSubmitAfterRelease(t *testing.T) {
	p, err := NewPool("closed", nil)
	require.NoError(t, err)
	p.Release()
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}
