// Package memory is an in-memory key-value backend: a namespace-scoped map
// from key to value bytes, held in process memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/semantics"
)

func init() {
	backend.RegisterKV("memory", func(dataPath string) (backend.KV, error) {
		return New(), nil
	})
}

// Backend is the in-memory kv store.
type Backend struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // namespace -> key -> value
}

// New returns an empty in-memory kv backend.
func New() *Backend {
	return &Backend{data: make(map[string]map[string][]byte)}
}

type batchHandle struct{}

func (b *Backend) BatchStart(ctx context.Context, namespace string, sem *semantics.Semantics) (backend.BatchHandle, error) {
	return batchHandle{}, nil
}

func (b *Backend) BatchExecute(ctx context.Context, h backend.BatchHandle) error { return nil }

func (b *Backend) Put(ctx context.Context, h backend.BatchHandle, namespace, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		b.data[namespace] = ns
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	ns[key] = stored
	return nil
}

func (b *Backend) Delete(ctx context.Context, h backend.BatchHandle, namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ns, ok := b.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ns, ok := b.data[namespace]
	if !ok {
		return nil, errs.NotFound("kv: %s/%s", namespace, key)
	}
	v, ok := ns[key]
	if !ok {
		return nil, errs.NotFound("kv: %s/%s", namespace, key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *Backend) GetAll(ctx context.Context, namespace string) (backend.KVIterator, error) {
	return b.GetByPrefix(ctx, namespace, "")
}

func (b *Backend) GetByPrefix(ctx context.Context, namespace, prefix string) (backend.KVIterator, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ns := b.data[namespace]
	keys := make([]string, 0, len(ns))
	for k := range ns {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, entry{key: k, value: ns[k]})
	}
	return &iterator{entries: entries}, nil
}

type entry struct {
	key   string
	value []byte
}

type iterator struct {
	entries []entry
	pos     int
}

func (it *iterator) Next(ctx context.Context) (string, []byte, error) {
	if it.pos >= len(it.entries) {
		return "", nil, errs.IteratorEnd
	}
	e := it.entries[it.pos]
	it.pos++
	return e.key, e.value, nil
}

func (it *iterator) Close() error {
	it.pos = len(it.entries)
	return nil
}
