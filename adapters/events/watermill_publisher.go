package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/kusaidia/ports"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topics    Topics
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topics:    Topics{}.withDefaults(),
		now:       time.Now,
	}
}

// WithTopics publishes on topics instead of the default ones
func (p *WatermillPublisher) WithTopics(topics Topics) *WatermillPublisher {
	p.topics = topics.withDefaults()
	return p
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishSessionRevoked publishes a session revocation event
func (p *WatermillPublisher) PublishSessionRevoked(ctx context.Context, accountID, refreshID string, reason ports.SessionRevokedReason) error {
	return p.publish(ctx, p.topics.Sessions, refreshID, SessionRevokedEvent{
		AccountID: accountID,
		RefreshID: refreshID,
		Reason:    reason,
		RevokedAt: p.now().UTC(),
	})
}

// PublishNotification emits a notification for delivery to its account
func (p *WatermillPublisher) PublishNotification(ctx context.Context, event NotificationCreatedEvent) error {
	uuid := event.ID
	if uuid == "" {
		uuid = watermill.NewUUID()
	}
	return p.publish(ctx, p.topics.Notifications, uuid, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, uuid string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
