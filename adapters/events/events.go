package events

import (
	"time"

	"github.com/layer-3/kusaidia/ports"
)

const (
	TopicSessions      = "kusaidia.sessions"
	TopicNotifications = "kusaidia.notifications"
)

// Topics names the streams events travel on. Empty names fall back to the defaults.
type Topics struct {
	Sessions      string
	Notifications string
}

func (t Topics) withDefaults() Topics {
	if t.Sessions == "" {
		t.Sessions = TopicSessions
	}
	if t.Notifications == "" {
		t.Notifications = TopicNotifications
	}
	return t
}

// SessionRevokedEvent is published when a refresh token stops being honoured
type SessionRevokedEvent struct {
	AccountID string                     `json:"account_id"`
	RefreshID string                     `json:"refresh_id"`
	Reason    ports.SessionRevokedReason `json:"reason"`
	RevokedAt time.Time                  `json:"revoked_at"`
}

// NotificationCreatedEvent is a business event that must reach an account.
// ID is optional; the message UUID is used when it is empty.
type NotificationCreatedEvent struct {
	ID        string  `json:"id,omitempty"`
	AccountID string  `json:"account_id"`
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	ActionURL *string `json:"action_url,omitempty"`
}
