package store

import (
	"sort"
	"sync"
)

// MemStore keeps values in process memory.
// It is what a page load without durable storage gets.
type MemStore struct {
	mutex  *sync.RWMutex
	db     map[string]string
	closed bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]string),
	}
}

func (m *MemStore) Get(key string) (string, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.db[key]
	return v, ok, nil
}

func (m *MemStore) Set(key, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.db[key] = value
	return nil
}

func (m *MemStore) Remove(keys ...string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.db, k)
	}
	return nil
}

func (m *MemStore) Keys() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.db))
	for k := range m.db {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}
