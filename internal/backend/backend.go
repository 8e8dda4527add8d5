// Package backend defines the capability interfaces a storage backend must
// satisfy for each of the three data models, and a name-keyed registry used
// to select an implementation at startup — backends are compiled in and
// selected by name rather than dynamically loaded; see DESIGN.md.
package backend

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dreamware/julea/internal/db"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/semantics"
)

// ErrIteratorEnd is the dedicated end-of-stream signal every Iterate method
// must return instead of a bare false, so callers can distinguish exhaustion
// from an I/O failure.
var ErrIteratorEnd = errs.IteratorEnd

// BatchHandle is an opaque backend-side handle for a batch of operations
// started with BatchStart and closed with BatchExecute.
type BatchHandle interface{}

// BatchLifecycle is satisfied by all three backend kinds: a backend either
// queues operations and applies them atomically on BatchExecute, or applies
// them immediately and treats BatchExecute as a barrier.
type BatchLifecycle interface {
	BatchStart(ctx context.Context, namespace string, sem *semantics.Semantics) (BatchHandle, error)
	BatchExecute(ctx context.Context, handle BatchHandle) error
}

// ObjectHandle is an opaque backend-side handle returned by Create/Open.
type ObjectHandle interface{}

// Object is the capability set an object-store backend implements.
type Object interface {
	BatchLifecycle

	Create(ctx context.Context, handle BatchHandle, namespace, path string) (ObjectHandle, error)
	Open(ctx context.Context, handle BatchHandle, namespace, path string) (ObjectHandle, error)
	Delete(ctx context.Context, handle BatchHandle, obj ObjectHandle) error
	Close(ctx context.Context, obj ObjectHandle) error
	Status(ctx context.Context, obj ObjectHandle) (modTimeNs int64, sizeBytes uint64, err error)
	Sync(ctx context.Context, obj ObjectHandle) error
	Read(ctx context.Context, obj ObjectHandle, buf []byte, length, offset uint64) (bytesRead uint64, err error)
	Write(ctx context.Context, obj ObjectHandle, buf []byte, offset uint64) (bytesWritten uint64, err error)
	GetAll(ctx context.Context, namespace string) (ObjectIterator, error)
	GetByPrefix(ctx context.Context, namespace, prefix string) (ObjectIterator, error)
}

// ObjectIterator yields object names one at a time. Next returns
// ErrIteratorEnd when exhausted.
type ObjectIterator interface {
	Next(ctx context.Context) (name string, err error)
	io.Closer
}

// KV is the capability set a key-value backend implements.
type KV interface {
	BatchLifecycle

	Put(ctx context.Context, handle BatchHandle, namespace, key string, value []byte) error
	Delete(ctx context.Context, handle BatchHandle, namespace, key string) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	GetAll(ctx context.Context, namespace string) (KVIterator, error)
	GetByPrefix(ctx context.Context, namespace, prefix string) (KVIterator, error)
}

// KVIterator yields (key, value) pairs one at a time. Next returns
// ErrIteratorEnd when exhausted.
type KVIterator interface {
	Next(ctx context.Context) (key string, value []byte, err error)
	io.Closer
}

// DB is the capability set a structured-database backend implements. All
// payloads are self-describing documents (internal/db.Document).
type DB interface {
	BatchLifecycle

	SchemaCreate(ctx context.Context, handle BatchHandle, name string, schemaDoc *db.Document) error
	SchemaGet(ctx context.Context, name string) (*db.Document, error)
	SchemaDelete(ctx context.Context, handle BatchHandle, name string) error
	Insert(ctx context.Context, handle BatchHandle, name string, entryDoc *db.Document) (idDoc *db.Document, err error)
	Update(ctx context.Context, handle BatchHandle, name string, selectorDoc, entryDoc *db.Document) error
	Delete(ctx context.Context, handle BatchHandle, name string, selectorDoc *db.Document) error
	Query(ctx context.Context, name string, selectorDoc *db.Document) (DBIterator, error)
}

// DBIterator yields row documents one at a time. Next returns
// ErrIteratorEnd when exhausted.
type DBIterator interface {
	Next(ctx context.Context) (row *db.Document, err error)
	io.Closer
}

// Info is what a backend plugin exports describing its capabilities and
// identity, analogous to the source's backend_info() entry point.
type Info struct {
	Name string
	Type string // "object", "kv", or "db"
}

var (
	registryMu sync.Mutex
	objects    = map[string]func(dataPath string) (Object, error){}
	kvs        = map[string]func(dataPath string) (KV, error){}
	dbs        = map[string]func(dataPath string) (DB, error){}
)

// RegisterObject makes an object backend constructor available under name.
// Called from backend implementation packages' init functions.
func RegisterObject(name string, constructor func(dataPath string) (Object, error)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	objects[name] = constructor
}

// RegisterKV makes a kv backend constructor available under name.
func RegisterKV(name string, constructor func(dataPath string) (KV, error)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	kvs[name] = constructor
}

// RegisterDB makes a db backend constructor available under name.
func RegisterDB(name string, constructor func(dataPath string) (DB, error)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	dbs[name] = constructor
}

// NewObject constructs the named object backend.
func NewObject(name, dataPath string) (Object, error) {
	registryMu.Lock()
	ctor, ok := objects[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend: unknown object backend %q", name)
	}
	return ctor(dataPath)
}

// NewKV constructs the named kv backend.
func NewKV(name, dataPath string) (KV, error) {
	registryMu.Lock()
	ctor, ok := kvs[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend: unknown kv backend %q", name)
	}
	return ctor(dataPath)
}

// NewDB constructs the named db backend.
func NewDB(name, dataPath string) (DB, error) {
	registryMu.Lock()
	ctor, ok := dbs[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backend: unknown db backend %q", name)
	}
	return ctor(dataPath)
}
