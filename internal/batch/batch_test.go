package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/julea/internal/semantics"
)

func recordingExecutor(calls *[][]string) Executor {
	return func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error {
		var keys []string
		for _, op := range group {
			keys = append(keys, op.Key)
		}
		*calls = append(*calls, keys)
		return nil
	}
}

func TestExecuteGroupsAdjacentSameKeyOperations(t *testing.T) {
	var calls [][]string
	exec := recordingExecutor(&calls)

	b := New("ns", semantics.New(semantics.TemplateTemporaryLocal))
	b.Add(&Operation{Key: "server-0", Exec: exec})
	b.Add(&Operation{Key: "server-0", Exec: exec})
	b.Add(&Operation{Key: "server-1", Exec: exec})
	b.Add(&Operation{Key: "server-0", Exec: exec})

	require.NoError(t, b.Execute(context.Background()))

	assert.Equal(t, [][]string{
		{"server-0", "server-0"},
		{"server-1"},
		{"server-0"},
	}, calls)
}

func TestExecuteIsNoOpSecondTime(t *testing.T) {
	count := 0
	exec := func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error {
		count++
		return nil
	}

	b := New("ns", semantics.New(semantics.TemplateTemporaryLocal))
	b.Add(&Operation{Key: "k", Exec: exec})

	require.NoError(t, b.Execute(context.Background()))
	require.NoError(t, b.Execute(context.Background()))
	assert.Equal(t, 1, count)
}

func TestExecuteResultIsConjunctionOfGroups(t *testing.T) {
	failing := func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error {
		return fmt.Errorf("boom")
	}
	succeeding := func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error {
		return nil
	}

	b := New("ns", semantics.New(semantics.TemplateTemporaryLocal))
	b.Add(&Operation{Key: "a", Exec: succeeding})
	b.Add(&Operation{Key: "b", Exec: failing})

	err := b.Execute(context.Background())
	assert.Error(t, err)
}

func TestEventualConsistencyCacheableBatchDefersExecution(t *testing.T) {
	ran := false
	exec := func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error {
		ran = true
		return nil
	}

	sem := semantics.New(semantics.TemplateDefault)
	require.NoError(t, sem.WithConsistency(semantics.ConsistencyEventual))

	b := New("ns", sem)
	var cached *Batch
	b.SetCacheHook(func(clone *Batch) { cached = clone })
	b.Add(&Operation{Key: "k", Exec: exec, Cacheable: true})

	require.NoError(t, b.Execute(context.Background()))
	assert.False(t, ran, "execution should be deferred into the cache")
	require.NotNil(t, cached)

	require.NoError(t, cached.ExecuteInternal(context.Background()))
	assert.True(t, ran)
}

func TestNonCacheableOperationRunsImmediatelyDespiteEventualConsistency(t *testing.T) {
	ran := false
	exec := func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error {
		ran = true
		return nil
	}

	sem := semantics.New(semantics.TemplateDefault)
	require.NoError(t, sem.WithConsistency(semantics.ConsistencyEventual))

	b := New("ns", sem)
	b.SetCacheHook(func(clone *Batch) { t.Fatal("should not be cached") })
	b.Add(&Operation{Key: "k", Exec: exec, Cacheable: false})

	require.NoError(t, b.Execute(context.Background()))
	assert.True(t, ran)
}

func TestCloneSharesFrozenSemantics(t *testing.T) {
	b := New("ns", semantics.New(semantics.TemplateDefault))
	b.Add(&Operation{Key: "k", Exec: func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error { return nil }})

	clone := b.Clone()
	assert.Same(t, b.Semantics(), clone.Semantics())
	assert.True(t, clone.Semantics().Frozen())
}
