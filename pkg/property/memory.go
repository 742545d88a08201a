package property

import (
	"sort"
	"sync"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Get returns the properties of (device, name).
func (s *MemoryStore) Get(device, name string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[ObjectKey(device, name)]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Put creates or replaces the properties of one object.
func (s *MemoryStore) Put(obj Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj.Device = wire.NormalizeName(obj.Device)
	obj.Key = ObjectKey(obj.Device, obj.Name)
	s.objects[obj.Key] = obj
	return nil
}

// List returns all objects stored for device, sorted by key.
func (s *MemoryStore) List(device string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device = wire.NormalizeName(device)
	var out []Object
	for _, obj := range s.objects {
		if obj.Device == device {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
