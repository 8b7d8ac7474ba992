package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Notification is a user-facing event. Read only ever moves from false to true.
type Notification struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	ActionURL *string   `json:"action_url"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageType tags the frames exchanged over the notification channel.
type MessageType string

const (
	MessageNotification MessageType = "notification"
	MessageUnreadCount  MessageType = "unread_count"
	MessageMarkRead     MessageType = "mark_read"
)

// Message is the tagged union carried over the notification channel.
// Exactly one payload field is set, selected by Type.
type Message struct {
	Type           MessageType   `json:"type"`
	Notification   *Notification `json:"notification,omitempty"`
	Count          *int          `json:"count,omitempty"`
	NotificationID string        `json:"notification_id,omitempty"`
}

// NotificationMessage wraps a notification for delivery.
func NotificationMessage(n Notification) Message {
	return Message{Type: MessageNotification, Notification: &n}
}

// UnreadCountMessage carries the server-authoritative unread count.
func UnreadCountMessage(count int) Message {
	return Message{Type: MessageUnreadCount, Count: &count}
}

// MarkReadMessage asks the server to mark a notification read.
func MarkReadMessage(id string) Message {
	return Message{Type: MessageMarkRead, NotificationID: id}
}

// DecodeMessage parses and validates a channel frame.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks that the payload matches the tag.
func (m Message) Validate() error {
	switch m.Type {
	case MessageNotification:
		if m.Notification == nil || m.Notification.ID == "" {
			return fmt.Errorf("%w: notification payload missing", ErrInvalidMessage)
		}
	case MessageUnreadCount:
		if m.Count == nil || *m.Count < 0 {
			return fmt.Errorf("%w: unread count missing", ErrInvalidMessage)
		}
	case MessageMarkRead:
		if m.NotificationID == "" {
			return fmt.Errorf("%w: notification id missing", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}
