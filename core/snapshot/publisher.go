package snapshot

import (
	"context"
	"errors"
	"sync"
)

// MultiPublisher fans a snapshot out to several publishers. Every publisher
// is attempted; errors are joined.
type MultiPublisher struct {
	Publishers []Publisher
}

// NewMultiPublisher combines publishers, dropping nil entries.
func NewMultiPublisher(pubs ...Publisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range pubs {
		if p != nil {
			m.Publishers = append(m.Publishers, p)
		}
	}
	return m
}

// Publish forwards s to every publisher.
func (m *MultiPublisher) Publish(ctx context.Context, s Snapshot) error {
	var errs []error
	for _, p := range m.Publishers {
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryStore keeps the latest snapshot for readers such as the HTTP API.
type MemoryStore struct {
	mu     sync.RWMutex
	latest Snapshot
	ok     bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Publish replaces the stored snapshot.
func (m *MemoryStore) Publish(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	m.latest = s
	m.ok = true
	m.mu.Unlock()
	return nil
}

// Latest returns the last published snapshot and whether one exists.
func (m *MemoryStore) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.ok
}

// Assignment returns the modules held by the named connector in the latest
// snapshot.
func (m *MemoryStore) Assignment(name string) ([]int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ok {
		return nil, false
	}
	mods, ok := m.latest.Assignments[name]
	return mods, ok
}
