package ports

import (
	"context"
	"time"

	"github.com/layer-3/kusaidia/core"
)

// RevocationStore records refresh token IDs that must no longer be honoured
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiry time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// NonceStore issues and consumes one-time challenges, at most one live challenge per address
type NonceStore interface {
	// Issue creates a fresh challenge for address, replacing any live one.
	Issue(ctx context.Context, address string) (*core.Challenge, error)
	// Consume atomically removes and returns the live challenge for address if its nonce equals value.
	// It returns core.ErrNonceInvalidOrExpired when no such challenge exists.
	Consume(ctx context.Context, address, value string) (*core.Challenge, error)
}

// AccountStore persists accounts
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*core.Account, error)
	GetByAddress(ctx context.Context, address string) (*core.Account, error)
	// Create inserts account and returns core.ErrAccountExists if its address is taken.
	Create(ctx context.Context, account *core.Account) error
	// Update replaces roles, active role and verification state.
	Update(ctx context.Context, account *core.Account) error
}

// NotificationStore is the durable notification store
type NotificationStore interface {
	// Create is idempotent on the notification id.
	Create(ctx context.Context, n *core.Notification) error
	List(ctx context.Context, accountID string, offset, limit int) ([]core.Notification, int, error)
	UnreadCount(ctx context.Context, accountID string) (int, error)
	// MarkRead is idempotent; it returns core.ErrNotificationNotFound for unknown ids.
	MarkRead(ctx context.Context, accountID, id string) error
	MarkAllRead(ctx context.Context, accountID string) (int, error)
}
