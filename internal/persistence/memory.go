package persistence

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by callers that
// opt out of durable persistence (e.g. the paper-trading quickstart).
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, keyspace, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[cacheKey(keyspace, key)] = payload
	return nil
}

func (m *MemoryStore) Get(_ context.Context, keyspace, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	payload, ok := m.data[cacheKey(keyspace, key)]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
