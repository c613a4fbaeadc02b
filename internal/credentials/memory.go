package credentials

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]WorkspaceCredential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]WorkspaceCredential)}
}

func (s *MemoryStore) Put(_ context.Context, cred WorkspaceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.TenantID] = cred
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID string) (*WorkspaceCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

func (s *MemoryStore) Delete(_ context.Context, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.creds[tenantID]
	delete(s.creds, tenantID)
	return ok, nil
}
