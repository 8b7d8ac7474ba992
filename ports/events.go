package ports

import (
	"context"

	"github.com/layer-3/kusaidia/core"
)

// SessionRevokedReason says why a session stopped being valid
type SessionRevokedReason string

const (
	ReasonLogout     SessionRevokedReason = "logout"
	ReasonRoleSwitch SessionRevokedReason = "role_switch"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSessionRevoked(ctx context.Context, accountID, refreshID string, reason SessionRevokedReason) error
}

// NotificationPusher delivers channel messages to the open connections of an account
type NotificationPusher interface {
	Push(accountID string, msg core.Message) int
}
