package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	count int
}

func (f *fakeFactory) Dial(ctx context.Context, address string) (Endpoint, error) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	return &fakeEndpoint{}, nil
}

func newTestPool(t *testing.T, maxConnections int) (*Pool, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	p, err := New(Config{
		ObjectServers:  []string{"127.0.0.1:9001", "127.0.0.1:9002"},
		MaxConnections: maxConnections,
	}, factory)
	require.NoError(t, err)
	return p, factory
}

func TestPopDialsUpToCapacity(t *testing.T) {
	p, factory := newTestPool(t, 2)
	ctx := context.Background()

	ep1, err := p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)
	ep2, err := p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, factory.count)
	assert.Equal(t, 2, p.Outstanding(BackendObject, 0))

	p.Push(BackendObject, 0, ep1)
	p.Push(BackendObject, 0, ep2)
}

func TestPopReusesPushedEndpoint(t *testing.T) {
	p, factory := newTestPool(t, 1)
	ctx := context.Background()

	ep, err := p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)
	p.Push(BackendObject, 0, ep)

	ep2, err := p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)
	assert.Same(t, ep, ep2)
	assert.Equal(t, 1, factory.count)
}

func TestPopBlocksAtCapacityUntilPush(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	ep, err := p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)

	done := make(chan Endpoint, 1)
	go func() {
		ep2, err := p.Pop(ctx, BackendObject, 0)
		require.NoError(t, err)
		done <- ep2
	}()

	select {
	case <-done:
		t.Fatal("pop should have blocked at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Push(BackendObject, 0, ep)

	select {
	case got := <-done:
		assert.Same(t, ep, got)
	case <-time.After(time.Second):
		t.Fatal("pop never unblocked after push")
	}
}

func TestDiscardDecrementsOutstanding(t *testing.T) {
	p, factory := newTestPool(t, 1)
	ctx := context.Background()

	ep, err := p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)
	p.Discard(BackendObject, 0, ep)
	assert.Equal(t, 0, p.Outstanding(BackendObject, 0))

	_, err = p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, factory.count)
}

func TestShutdownClosesIdleAndRefusesPop(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	ep, err := p.Pop(ctx, BackendObject, 0)
	require.NoError(t, err)
	p.Push(BackendObject, 0, ep)

	require.NoError(t, p.Shutdown())
	assert.True(t, ep.(*fakeEndpoint).closed)

	_, err = p.Pop(ctx, BackendObject, 0)
	assert.Error(t, err)
}

func TestPopUnknownServerIndexErrors(t *testing.T) {
	p, _ := newTestPool(t, 1)
	_, err := p.Pop(context.Background(), BackendObject, 99)
	assert.Error(t, err)
}

func TestConcurrentPopNeverExceedsCapacity(t *testing.T) {
	p, _ := newTestPool(t, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep, err := p.Pop(ctx, BackendObject, 1)
			if err != nil {
				errs <- err
				return
			}
			if p.Outstanding(BackendObject, 1) > 3 {
				errs <- fmt.Errorf("outstanding exceeded capacity")
			}
			time.Sleep(time.Millisecond)
			p.Push(BackendObject, 1, ep)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
