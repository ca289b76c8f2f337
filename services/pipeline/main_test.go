package pipeline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func double(_ context.Context, batch []int) ([]int, error) {
	out := make([]int, len(batch))
	for i, v := range batch {
		out[i] = v * 2
	}
	return out, nil
}

type collector struct {
	mux    sync.Mutex
	values []int
}

func (c *collector) write(_ context.Context, batch []int) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.values = append(c.values, batch...)
	return nil
}

func (c *collector) sorted() []int {
	c.mux.Lock()
	defer c.mux.Unlock()
	out := append([]int(nil), c.values...)
	sort.Ints(out)
	return out
}

func TestRunnerWithWriter(t *testing.T) {
	c := &collector{}
	cfg := DefaultConfig()
	cfg.BatchSize = 7
	cfg.NumTasks = 4
	r := New[int, int](cfg, SliceReader(numbers(100)), double, c.write, nil)

	require.NoError(t, r.Run(context.Background()))

	values := c.sorted()
	require.Len(t, values, 100)
	assert.Equal(t, 0, values[0])
	assert.Equal(t, 198, values[99])
	assert.Equal(t, int64(15), r.Stats().Batches)
	assert.Equal(t, int64(100), r.Stats().Written)
}

func TestRunnerParallelWrite(t *testing.T) {
	c := &collector{}
	cfg := DefaultConfig()
	cfg.NumTasks = 3
	cfg.BatchSize = 10
	r := New[int, int](cfg, SliceReader(numbers(50)), Then[int, int](double, c.write), nil, nil)

	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, c.sorted(), 50)
}

func TestRunnerAbortsOnFirstFailure(t *testing.T) {
	var calls atomic.Int64
	boom := errors.New("boom")
	task := func(ctx context.Context, batch []int) ([]int, error) {
		calls.Add(1)
		if batch[0] == 0 {
			return nil, boom
		}
		// give the failure a chance to cancel the others
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		return batch, nil
	}
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.NumTasks = 2
	r := New[int, int](cfg, SliceReader(numbers(1000)), task, nil, nil)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, calls.Load(), int64(1000))
}

func TestRunnerAggregatesWhenNotAborting(t *testing.T) {
	task := func(_ context.Context, batch []int) ([]int, error) {
		if batch[0]%2 == 0 {
			return nil, errors.Errorf("batch %d", batch[0])
		}
		return batch, nil
	}
	c := &collector{}
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.NumTasks = 2
	cfg.AbortOnFail = false
	r := New[int, int](cfg, SliceReader(numbers(10)), task, c.write, nil)

	err := r.Run(context.Background())
	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	assert.Len(t, merr.Errors, 5)
	assert.Equal(t, []int{1, 3, 5, 7, 9}, c.sorted())
	assert.Equal(t, int64(5), r.Stats().Failed)
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	task := func(_ context.Context, batch []int) ([]int, error) {
		panic("bad batch")
	}
	r := New[int, int](DefaultConfig(), SliceReader(numbers(3)), task, nil, nil)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad batch")
}

func TestRunnerReaderFailure(t *testing.T) {
	read := func(_ context.Context, _ int) ([]int, error) {
		return nil, errors.New("disk gone")
	}
	r := New[int, int](DefaultConfig(), read, double, nil, nil)
	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	read := func(ctx context.Context, _ int) ([]int, error) {
		return []int{1}, nil
	}
	r := New[int, int](DefaultConfig(), read, double, nil, nil)
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestPutTimeout(t *testing.T) {
	ch := make(chan int)
	err := put(context.Background(), ch, 1, 5*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}
