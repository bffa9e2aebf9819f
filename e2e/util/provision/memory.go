package provision

import (
	"context"
	"sync"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

// MemoryBackend keeps resources in memory. Creations and deletions become
// visible only after the configured number of lookups, modelling a backing
// store that converges asynchronously. It is meant for tests.
type MemoryBackend struct {
	mu sync.Mutex

	kind string
	// CreateLag is the number of lookups a new resource stays invisible for.
	CreateLag int
	// DeleteLag is the number of lookups a deleted resource stays visible for.
	DeleteLag int

	items       map[string]int
	deleting    map[string]int
	Creates     int
	Deletes     int
	LookupCalls int
}

// NewMemoryBackend returns an empty MemoryBackend for kind.
func NewMemoryBackend(kind string, existing ...string) *MemoryBackend {
	m := &MemoryBackend{kind: kind, items: map[string]int{}, deleting: map[string]int{}}
	for _, name := range existing {
		m.items[name] = 0
	}
	return m
}

func (m *MemoryBackend) Kind() string { return m.kind }

func (m *MemoryBackend) Lookup(_ context.Context, name string) (resource.Existence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LookupCalls++

	if left, ok := m.deleting[name]; ok {
		if left > 0 {
			m.deleting[name] = left - 1
			return resource.Exists, nil
		}
		delete(m.deleting, name)
		return resource.NotFound, nil
	}
	left, ok := m.items[name]
	if !ok {
		return resource.NotFound, nil
	}
	if left > 0 {
		m.items[name] = left - 1
		return resource.NotFound, nil
	}
	return resource.Exists, nil
}

func (m *MemoryBackend) Create(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Creates++
	m.items[name] = m.CreateLag
	return nil
}

func (m *MemoryBackend) PrepareDelete(_ context.Context, name string) (DeleteRequest, error) {
	return &memoryDelete{backend: m, name: name}, nil
}

type memoryDelete struct {
	backend *MemoryBackend
	name    string
}

func (d *memoryDelete) Confirm(context.Context) error {
	m := d.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	delete(m.items, d.name)
	m.deleting[d.name] = m.DeleteLag
	return nil
}

func (d *memoryDelete) Cancel(context.Context) error {
	return nil
}
