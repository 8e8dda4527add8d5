// Package memory is an in-memory object backend: namespaces map to paths
// map to byte buffers held in process memory. It backs scenario tests and
// stand-alone demos; nothing is durable across process restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/semantics"
)

func init() {
	backend.RegisterObject("memory", func(dataPath string) (backend.Object, error) {
		return New(), nil
	})
}

type object struct {
	namespace string
	path      string
	data      []byte
	modTimeNs int64
}

// Backend is the in-memory object store.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object // "namespace/path" -> object
}

// New returns an empty in-memory object backend.
func New() *Backend {
	return &Backend{objects: make(map[string]*object)}
}

func key(namespace, path string) string { return namespace + "/" + path }

type batchHandle struct{}

func (b *Backend) BatchStart(ctx context.Context, namespace string, sem *semantics.Semantics) (backend.BatchHandle, error) {
	return batchHandle{}, nil
}

func (b *Backend) BatchExecute(ctx context.Context, h backend.BatchHandle) error { return nil }

func (b *Backend) Create(ctx context.Context, h backend.BatchHandle, namespace, path string) (backend.ObjectHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(namespace, path)
	obj, ok := b.objects[k]
	if !ok {
		obj = &object{namespace: namespace, path: path, modTimeNs: time.Now().UnixNano()}
		b.objects[k] = obj
	}
	return obj, nil
}

func (b *Backend) Open(ctx context.Context, h backend.BatchHandle, namespace, path string) (backend.ObjectHandle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key(namespace, path)]
	if !ok {
		return nil, errs.NotFound("object: %s/%s", namespace, path)
	}
	return obj, nil
}

func (b *Backend) Delete(ctx context.Context, h backend.BatchHandle, handle backend.ObjectHandle) error {
	obj := handle.(*object)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key(obj.namespace, obj.path))
	return nil
}

func (b *Backend) Close(ctx context.Context, handle backend.ObjectHandle) error { return nil }

func (b *Backend) Status(ctx context.Context, handle backend.ObjectHandle) (int64, uint64, error) {
	obj := handle.(*object)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.objects[key(obj.namespace, obj.path)]; !ok {
		return 0, 0, errs.NotFound("object: %s/%s", obj.namespace, obj.path)
	}
	return obj.modTimeNs, uint64(len(obj.data)), nil
}

func (b *Backend) Sync(ctx context.Context, handle backend.ObjectHandle) error { return nil }

func (b *Backend) Read(ctx context.Context, handle backend.ObjectHandle, buf []byte, length, offset uint64) (uint64, error) {
	obj := handle.(*object)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if offset >= uint64(len(obj.data)) {
		return 0, nil
	}
	end := offset + length
	if end > uint64(len(obj.data)) {
		end = uint64(len(obj.data))
	}
	n := copy(buf, obj.data[offset:end])
	return uint64(n), nil
}

func (b *Backend) Write(ctx context.Context, handle backend.ObjectHandle, buf []byte, offset uint64) (uint64, error) {
	obj := handle.(*object)
	b.mu.Lock()
	defer b.mu.Unlock()
	needed := offset + uint64(len(buf))
	if needed > uint64(len(obj.data)) {
		grown := make([]byte, needed)
		copy(grown, obj.data)
		obj.data = grown
	}
	n := copy(obj.data[offset:], buf)
	obj.modTimeNs = time.Now().UnixNano()
	return uint64(n), nil
}

func (b *Backend) GetAll(ctx context.Context, namespace string) (backend.ObjectIterator, error) {
	return b.GetByPrefix(ctx, namespace, "")
}

func (b *Backend) GetByPrefix(ctx context.Context, namespace, prefix string) (backend.ObjectIterator, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var names []string
	for _, obj := range b.objects {
		if obj.namespace != namespace {
			continue
		}
		if prefix != "" && !hasPrefix(obj.path, prefix) {
			continue
		}
		names = append(names, obj.path)
	}
	return &iterator{names: names}, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

type iterator struct {
	names []string
	pos   int
}

func (it *iterator) Next(ctx context.Context) (string, error) {
	if it.pos >= len(it.names) {
		return "", errs.IteratorEnd
	}
	name := it.names[it.pos]
	it.pos++
	return name, nil
}

func (it *iterator) Close() error {
	it.pos = len(it.names)
	return nil
}
