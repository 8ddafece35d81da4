package storageblob

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("storageblob: blob not found")

// Meta carries the transport-level attributes stored alongside a blob.
type Meta struct {
	ContentType  string
	Size         int64
	CacheControl string
}

// Backend is the pluggable blob store interface. Keys are always
// "<bucket_id>/<object_name>". Implementations must be safe for
// concurrent use.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, meta Meta) error
	Get(ctx context.Context, key string) ([]byte, Meta, error)
	Delete(ctx context.Context, key string) (bool, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	Copy(ctx context.Context, from, to string) (bool, error)
}

type memoryEntry struct {
	data []byte
	meta Meta
}

// MemoryBackend is the default Backend: an in-process map. Bytes do
// not survive a restart, which matches the emulator's default
// non-durability contract.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string]memoryEntry
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string]memoryEntry)}
}

func (m *MemoryBackend) Put(ctx context.Context, key string, data []byte, meta Meta) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	if meta.Size == 0 {
		meta.Size = int64(len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memoryEntry{data: stored, meta: meta}
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, Meta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.blobs[key]
	if !ok {
		return nil, Meta{}, ErrNotFound
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, entry.meta, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blobs[key]
	delete(m.blobs, key)
	return ok, nil
}

func (m *MemoryBackend) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for key := range m.blobs {
		if strings.HasPrefix(key, prefix) {
			delete(m.blobs, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *MemoryBackend) Copy(ctx context.Context, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.blobs[from]
	if !ok {
		return false, nil
	}
	data := make([]byte, len(entry.data))
	copy(data, entry.data)
	m.blobs[to] = memoryEntry{data: data, meta: entry.meta}
	return true, nil
}

// Keys returns every stored key in sorted order, mostly useful for
// tests and the maintenance sweep.
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
