// Package null is the canonical do-nothing kv backend: puts and deletes
// succeed, gets always miss, iterators are immediately empty.
package null

import (
	"context"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/semantics"
)

func init() {
	backend.RegisterKV("null", func(dataPath string) (backend.KV, error) {
		return New(), nil
	})
}

// Backend is the null kv backend.
type Backend struct{}

// New returns a null kv backend.
func New() *Backend { return &Backend{} }

type handle struct{}

func (b *Backend) BatchStart(ctx context.Context, namespace string, sem *semantics.Semantics) (backend.BatchHandle, error) {
	return handle{}, nil
}

func (b *Backend) BatchExecute(ctx context.Context, h backend.BatchHandle) error { return nil }

func (b *Backend) Put(ctx context.Context, h backend.BatchHandle, namespace, key string, value []byte) error {
	return nil
}

func (b *Backend) Delete(ctx context.Context, h backend.BatchHandle, namespace, key string) error {
	return nil
}

func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	return nil, errs.NotFound("kv: %s/%s", namespace, key)
}

func (b *Backend) GetAll(ctx context.Context, namespace string) (backend.KVIterator, error) {
	return emptyIterator{}, nil
}

func (b *Backend) GetByPrefix(ctx context.Context, namespace, prefix string) (backend.KVIterator, error) {
	return emptyIterator{}, nil
}

type emptyIterator struct{}

func (emptyIterator) Next(ctx context.Context) (string, []byte, error) {
	return "", nil, backend.ErrIteratorEnd
}
func (emptyIterator) Close() error { return nil }
