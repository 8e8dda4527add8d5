// Package null is the canonical do-nothing object backend: every operation
// succeeds without storing anything. It exists as a reference shape and a
// test double.
package null

import (
	"context"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/semantics"
)

func init() {
	backend.RegisterObject("null", func(dataPath string) (backend.Object, error) {
		return New(), nil
	})
}

// Backend is the null object backend.
type Backend struct{}

// New returns a null object backend.
func New() *Backend { return &Backend{} }

type handle struct{}

func (b *Backend) BatchStart(ctx context.Context, namespace string, sem *semantics.Semantics) (backend.BatchHandle, error) {
	return handle{}, nil
}

func (b *Backend) BatchExecute(ctx context.Context, h backend.BatchHandle) error { return nil }

func (b *Backend) Create(ctx context.Context, h backend.BatchHandle, namespace, path string) (backend.ObjectHandle, error) {
	return handle{}, nil
}

func (b *Backend) Open(ctx context.Context, h backend.BatchHandle, namespace, path string) (backend.ObjectHandle, error) {
	return handle{}, nil
}

func (b *Backend) Delete(ctx context.Context, h backend.BatchHandle, obj backend.ObjectHandle) error {
	return nil
}

func (b *Backend) Close(ctx context.Context, obj backend.ObjectHandle) error { return nil }

func (b *Backend) Status(ctx context.Context, obj backend.ObjectHandle) (int64, uint64, error) {
	return 0, 0, nil
}

func (b *Backend) Sync(ctx context.Context, obj backend.ObjectHandle) error { return nil }

func (b *Backend) Read(ctx context.Context, obj backend.ObjectHandle, buf []byte, length, offset uint64) (uint64, error) {
	return 0, nil
}

func (b *Backend) Write(ctx context.Context, obj backend.ObjectHandle, buf []byte, offset uint64) (uint64, error) {
	return uint64(len(buf)), nil
}

func (b *Backend) GetAll(ctx context.Context, namespace string) (backend.ObjectIterator, error) {
	return emptyIterator{}, nil
}

func (b *Backend) GetByPrefix(ctx context.Context, namespace, prefix string) (backend.ObjectIterator, error) {
	return emptyIterator{}, nil
}

type emptyIterator struct{}

func (emptyIterator) Next(ctx context.Context) (string, error) { return "", backend.ErrIteratorEnd }
func (emptyIterator) Close() error                             { return nil }
