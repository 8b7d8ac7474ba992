package store

import (
	"context"
	"sort"
	"sync"

	"github.com/layer-3/kusaidia/core"
)

// MemoryNotificationStore is an in-memory NotificationStore
type MemoryNotificationStore struct {
	mu    sync.RWMutex
	items map[string]*core.Notification
}

// NewMemoryNotificationStore creates an empty notification store
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{items: make(map[string]*core.Notification)}
}

// Create stores n unless a notification with the same id already exists
func (s *MemoryNotificationStore) Create(ctx context.Context, n *core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[n.ID]; ok {
		return nil
	}
	cp := *n
	s.items[n.ID] = &cp
	return nil
}

// List returns the account's notifications newest first
func (s *MemoryNotificationStore) List(ctx context.Context, accountID string, offset, limit int) ([]core.Notification, int, error) {
	s.mu.RLock()
	all := make([]core.Notification, 0)
	for _, n := range s.items {
		if n.AccountID == accountID {
			all = append(all, *n)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []core.Notification{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *MemoryNotificationStore) UnreadCount(ctx context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if n.AccountID == accountID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryNotificationStore) MarkRead(ctx context.Context, accountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok || n.AccountID != accountID {
		return core.ErrNotificationNotFound
	}
	n.Read = true
	return nil
}

func (s *MemoryNotificationStore) MarkAllRead(ctx context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, n := range s.items {
		if n.AccountID == accountID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}
