package blob

import (
	"context"
	"sync"

	"github.com/strixun/edgecore/internal/apperr"
)

// MemoryBackend is an in-process Backend used by unit tests and local dev,
// mirroring the role kv.MemoryStore plays for internal/kv.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	meta Metadata
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]memoryObject)}
}

func (b *MemoryBackend) Put(_ context.Context, r2Key string, data []byte, meta Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.objects[r2Key] = memoryObject{data: cp, meta: meta}
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, r2Key string) ([]byte, Metadata, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[r2Key]
	if !ok {
		return nil, Metadata{}, false, nil
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, obj.meta, true, nil
}

func (b *MemoryBackend) Delete(_ context.Context, r2Key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[r2Key]; !ok {
		return apperr.New(apperr.KindNotFound, "object not found")
	}
	delete(b.objects, r2Key)
	return nil
}
