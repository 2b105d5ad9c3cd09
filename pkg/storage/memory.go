package storage

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. Data is lost when the process exits.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

// Get implements Store.
func (m *MemoryStore) Get(ns, key string) ([]byte, error) {
	if err := validKey(ns, key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[ns][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Set implements Store.
func (m *MemoryStore) Set(ns, key string, val []byte) error {
	if err := validKey(ns, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.data[ns]
	if bucket == nil {
		bucket = make(map[string][]byte)
		m.data[ns] = bucket
	}
	bucket[key] = clone(val)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ns, key string) error {
	if err := validKey(ns, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, ok := m.data[ns]; ok {
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(m.data, ns)
		}
	}
	return nil
}

// EraseNamespace implements Store.
func (m *MemoryStore) EraseNamespace(ns string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, ns)
	return nil
}

// EraseAll implements Store.
func (m *MemoryStore) EraseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]map[string][]byte)
	return nil
}

// Namespaces implements Store.
func (m *MemoryStore) Namespaces() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortedKeys(m.data), nil
}

func sortedKeys(data map[string]map[string][]byte) []string {
	out := make([]string, 0, len(data))
	for ns := range data {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

var _ Store = (*MemoryStore)(nil)
