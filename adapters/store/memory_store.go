package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the RevocationStore interface
type MemoryStore struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory revocation store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke marks a token ID as revoked until expiry elapses
func (s *MemoryStore) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := s.now().Add(expiry)
	// Never shorten an existing revocation
	if current, ok := s.revoked[tokenID]; ok && current.After(until) {
		return nil
	}
	s.revoked[tokenID] = until

	return nil
}

// IsRevoked checks if a token ID is revoked
func (s *MemoryStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, exists := s.revoked[tokenID]
	if !exists {
		return false, nil
	}

	return s.now().Before(until), nil
}

// Sweep drops revocation records whose token would have expired anyway
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && logger != nil {
				logger.Debug("swept expired revocations", slog.Int("count", n))
			}
		}
	}
}
