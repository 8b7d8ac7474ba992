package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/logger"
	"github.com/layer-3/kusaidia/internal/metrics"
	"github.com/layer-3/kusaidia/ports"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NewNotification is a business event to be stored and pushed to an account
type NewNotification struct {
	ID        string
	AccountID string
	Type      string
	Message   string
	ActionURL *string
}

// NotificationService stores notifications and keeps open channels in sync
type NotificationService struct {
	store  ports.NotificationStore
	pusher ports.NotificationPusher
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationService creates a notification service. pusher may be nil.
func NewNotificationService(store ports.NotificationStore, pusher ports.NotificationPusher, log *slog.Logger) *NotificationService {
	if log == nil {
		log = logger.Discard()
	}
	return &NotificationService{store: store, pusher: pusher, logger: log, now: time.Now}
}

// List returns one page of the account's notifications, newest first, and the total count.
// Pages start at 1.
func (s *NotificationService) List(ctx context.Context, accountID string, page, perPage int) ([]core.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}

	items, total, err := s.store.List(ctx, accountID, (page-1)*perPage, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, accountID string) (int, error) {
	count, err := s.store.UnreadCount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read and pushes the resynced unread count
func (s *NotificationService) MarkRead(ctx context.Context, accountID, notificationID string) error {
	if err := s.store.MarkRead(ctx, accountID, notificationID); err != nil {
		return err
	}
	s.pushUnreadCount(ctx, accountID)
	return nil
}

// MarkAllRead marks every unread notification read and returns how many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, accountID string) (int, error) {
	changed, err := s.store.MarkAllRead(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	s.pushUnreadCount(ctx, accountID)
	return changed, nil
}

// Deliver stores a notification and pushes it, followed by the unread count,
// to the account's open connections. Redelivery of the same id is stored once.
func (s *NotificationService) Deliver(ctx context.Context, in NewNotification) (*core.Notification, error) {
	if in.AccountID == "" {
		return nil, fmt.Errorf("%w: account id missing", core.ErrInvalidMessage)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}

	n := &core.Notification{
		ID:        in.ID,
		AccountID: in.AccountID,
		Type:      in.Type,
		Message:   in.Message,
		ActionURL: in.ActionURL,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	pushed := 0
	if s.pusher != nil {
		pushed = s.pusher.Push(n.AccountID, core.NotificationMessage(*n))
		s.pushUnreadCount(ctx, n.AccountID)
	}
	metrics.NotificationsDelivered.WithLabelValues(strconv.FormatBool(pushed > 0)).Inc()

	return n, nil
}

// SyncMessage returns the unread count frame sent to a freshly opened connection
func (s *NotificationService) SyncMessage(ctx context.Context, accountID string) (core.Message, error) {
	count, err := s.UnreadCount(ctx, accountID)
	if err != nil {
		return core.Message{}, err
	}
	return core.UnreadCountMessage(count), nil
}

func (s *NotificationService) pushUnreadCount(ctx context.Context, accountID string) {
	if s.pusher == nil {
		return
	}
	msg, err := s.SyncMessage(ctx, accountID)
	if err != nil {
		s.logger.Warn("failed to resync unread count",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.pusher.Push(accountID, msg)
}
