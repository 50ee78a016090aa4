package keyring

import (
	"context"
	"sync"

	"skyseal/pkg/platform/sentinel"
)

// InMemoryRegistry is a mutex-guarded map registry for single-node
// deployments and tests. For shared deployments, use PostgresRegistry.
type InMemoryRegistry struct {
	mu   sync.RWMutex
	keys map[string]KeyRecord
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{keys: make(map[string]KeyRecord)}
}

func (r *InMemoryRegistry) Resolve(_ context.Context, keyID string) (KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.keys[keyID]
	if !ok {
		return KeyRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

func (r *InMemoryRegistry) Register(_ context.Context, record KeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.keys[record.KeyID]; exists {
		return sentinel.ErrConflict
	}
	r.keys[record.KeyID] = record
	return nil
}

func (r *InMemoryRegistry) Revoke(_ context.Context, keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.keys[keyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Revoked = true
	r.keys[keyID] = record
	return nil
}
