// Package memstore is an in-process persist.LocalStore and persist.RemoteStore
// for development and tests. Nothing survives a restart.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/JonMunkholm/registrysync/internal/persist"
)

// Store keeps snapshots in a map.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// PutAll writes every entry under one lock.
func (s *Store) PutAll(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

// Mirror is an in-memory remote store: one keyed map per collection.
type Mirror struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
}

func NewMirror() *Mirror {
	return &Mirror{collections: make(map[string]map[string]json.RawMessage)}
}

// SelectAll returns documents ordered by key.
func (m *Mirror) SelectAll(_ context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		out = append(out, append(json.RawMessage(nil), docs[k]...))
	}
	return out, nil
}

func (m *Mirror) Upsert(_ context.Context, collection string, rows []persist.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	if docs == nil {
		docs = make(map[string]json.RawMessage, len(rows))
		m.collections[collection] = docs
	}
	for _, r := range rows {
		docs[r.Key] = append(json.RawMessage(nil), r.Data...)
	}
	return nil
}

func (m *Mirror) Prune(_ context.Context, collection string, keep []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]bool, len(keep))
	for _, k := range keep {
		want[k] = true
	}
	for k := range m.collections[collection] {
		if !want[k] {
			delete(m.collections[collection], k)
		}
	}
	return nil
}

// Len returns the number of documents in collection.
func (m *Mirror) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}
