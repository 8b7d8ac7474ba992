package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// Handlers receive decoded events. A nil handler skips its topic.
type Handlers struct {
	Topics Topics

	OnNotification   func(ctx context.Context, event NotificationCreatedEvent) error
	OnSessionRevoked func(ctx context.Context, event SessionRevokedEvent) error
}

// NewRouter wires the handlers to their topics on subscriber.
// Payloads that cannot be decoded are acked and logged, handler errors are retried.
func NewRouter(subscriber message.Subscriber, handlers Handlers, logger *slog.Logger) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	topics := handlers.Topics.withDefaults()

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Multiplier:      2,
			Logger:          watermill.NewSlogLogger(logger),
		}.Middleware,
	)

	if handlers.OnNotification != nil {
		router.AddNoPublisherHandler("notifications", topics.Notifications, subscriber, func(msg *message.Message) error {
			var event NotificationCreatedEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logger.Warn("dropping malformed notification event", slog.String("uuid", msg.UUID), slog.String("error", err.Error()))
				return nil
			}
			if event.ID == "" {
				event.ID = msg.UUID
			}
			return handlers.OnNotification(msg.Context(), event)
		})
	}

	if handlers.OnSessionRevoked != nil {
		router.AddNoPublisherHandler("sessions", topics.Sessions, subscriber, func(msg *message.Message) error {
			var event SessionRevokedEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logger.Warn("dropping malformed session event", slog.String("uuid", msg.UUID), slog.String("error", err.Error()))
				return nil
			}
			return handlers.OnSessionRevoked(msg.Context(), event)
		})
	}

	return router, nil
}
