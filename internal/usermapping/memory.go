package usermapping

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]map[string]UserMapping
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]map[string]UserMapping)}
}

func (s *MemoryStore) Put(_ context.Context, mapping UserMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.tenants[mapping.TenantID]
	if !ok {
		users = make(map[string]UserMapping)
		s.tenants[mapping.TenantID] = users
	}

	now := time.Now().UTC()
	if existing, ok := users[mapping.UserID]; ok {
		mapping.CreatedAt = existing.CreatedAt
	} else if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now
	users[mapping.UserID] = mapping
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, userID string) (*UserMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapping, ok := s.tenants[tenantID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &mapping, nil
}

func (s *MemoryStore) List(_ context.Context, tenantID string) ([]UserMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := s.tenants[tenantID]
	out := make([]UserMapping, 0, len(users))
	for _, m := range users {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) DeleteTenantMappings(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.tenants[tenantID])
	delete(s.tenants, tenantID)
	return n, nil
}
