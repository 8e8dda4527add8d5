package workerpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitWaitReturnsResult(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	task, err := Submit(p, func(ctx context.Context) (int, error) {
		return 42, nil
	}, context.Background())
	require.NoError(t, err)

	val, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestSubmitPropagatesError(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	task, err := Submit(p, func(ctx context.Context) (int, error) {
		return 0, fmt.Errorf("boom")
	}, context.Background())
	require.NoError(t, err)

	_, err = task.Wait(context.Background())
	assert.Error(t, err)
}

func TestShutdownDrainsQueuedWork(t *testing.T) {
	p := New(2)
	var count atomic.Int32
	var tasks []*Task[struct{}]
	for i := 0; i < 10; i++ {
		task, err := Submit(p, func(ctx context.Context) (struct{}, error) {
			count.Add(1)
			return struct{}{}, nil
		}, context.Background())
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	p.Shutdown()
	assert.EqualValues(t, 10, count.Load())
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(1)
	p.Shutdown()
	_, err := Submit(p, func(ctx context.Context) (int, error) { return 0, nil }, context.Background())
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestRunParallelRunsEveryItem(t *testing.T) {
	var count atomic.Int32
	err := RunParallel(context.Background(), 5, func(ctx context.Context, i int) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, count.Load())
}

func TestRunParallelCollectsFirstError(t *testing.T) {
	err := RunParallel(context.Background(), 5, func(ctx context.Context, i int) error {
		if i == 2 {
			return fmt.Errorf("boom")
		}
		return nil
	})
	assert.Error(t, err)
}
