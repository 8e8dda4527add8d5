package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/julea/internal/batch"
	"github.com/dreamware/julea/internal/semantics"
)

func newBatch(t *testing.T, ran *bool) *batch.Batch {
	t.Helper()
	b := batch.New("ns", semantics.New(semantics.TemplateTemporaryLocal))
	b.Add(&batch.Operation{
		Key: "k",
		Exec: func(ctx context.Context, group []*batch.Operation, sem *semantics.Semantics) error {
			*ran = true
			return nil
		},
	})
	return b
}

func TestPushDoesNotRunUntilFlush(t *testing.T) {
	c := New(0)
	var ran bool
	require.NoError(t, c.Push(context.Background(), newBatch(t, &ran)))
	assert.False(t, ran)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Flush(context.Background()))
	assert.True(t, ran)
	assert.Equal(t, 0, c.Len())
}

func TestFlushRunsInEnqueueOrder(t *testing.T) {
	c := New(0)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b := batch.New("ns", semantics.New(semantics.TemplateTemporaryLocal))
		b.Add(&batch.Operation{
			Key: "k",
			Exec: func(ctx context.Context, group []*batch.Operation, sem *semantics.Semantics) error {
				order = append(order, i)
				return nil
			},
		})
		require.NoError(t, c.Push(context.Background(), b))
	}
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestShutdownFlushesAndRefusesCaching(t *testing.T) {
	c := New(1000)
	var ran1, ran2 bool
	require.NoError(t, c.Push(context.Background(), newBatch(t, &ran1)))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.True(t, ran1)

	require.NoError(t, c.Push(context.Background(), newBatch(t, &ran2)))
	assert.True(t, ran2, "push after shutdown should flush immediately")
}
