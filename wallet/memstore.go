package wallet

import (
	"sort"
	"sync"
)

// MemStore is an in-memory wallet used by tests and dry runs
type MemStore struct {
	mu  sync.RWMutex
	ids map[string]Identity
}

// NewMemStore creates an empty in-memory wallet
func NewMemStore() *MemStore {
	return &MemStore{ids: make(map[string]Identity)}
}

// Get returns a stored identity, (nil, nil) when absent
func (s *MemStore) Get(label string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[label]
	if !ok {
		return nil, nil
	}
	id.Label = label
	return &id, nil
}

// Put stores an identity, overwriting any prior record
func (s *MemStore) Put(label string, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *id
	if stored.Type == "" {
		stored.Type = TypeX509
	}
	s.ids[label] = stored
	return nil
}

// Remove deletes an identity
func (s *MemStore) Remove(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, label)
	return nil
}

// Exists reports whether the label is stored
func (s *MemStore) Exists(label string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[label]
	return ok, nil
}

// List enumerates the stored identities in label order
func (s *MemStore) List() ([]Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]Descriptor, 0, len(s.ids))
	for label, id := range s.ids {
		ids = append(ids, Descriptor{Label: label, Type: id.Type})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Label < ids[j].Label })
	return ids, nil
}
