package store

import (
	"context"
	"sync"

	"github.com/layer-3/kusaidia/core"
)

// MemoryAccountStore is an in-memory AccountStore, mainly for tests and single-node setups
type MemoryAccountStore struct {
	mu        sync.RWMutex
	byID      map[string]*core.Account
	byAddress map[string]string
}

// NewMemoryAccountStore creates an empty account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:      make(map[string]*core.Account),
		byAddress: make(map[string]string),
	}
}

func (s *MemoryAccountStore) GetByID(ctx context.Context, id string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *MemoryAccountStore) GetByAddress(ctx context.Context, address string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryAccountStore) Create(ctx context.Context, account *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAddress[account.Address]; ok {
		return core.ErrAccountExists
	}
	if _, ok := s.byID[account.ID]; ok {
		return core.ErrAccountExists
	}
	s.byID[account.ID] = account.Clone()
	s.byAddress[account.Address] = account.ID
	return nil
}

func (s *MemoryAccountStore) Update(ctx context.Context, account *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return core.ErrAccountNotFound
	}
	next := account.Clone()
	next.Address = current.Address
	next.CreatedAt = current.CreatedAt
	s.byID[account.ID] = next
	return nil
}
