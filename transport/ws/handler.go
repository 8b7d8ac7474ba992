package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/layer-3/kusaidia/core"
)

// Authenticator resolves the access token presented on connect
type Authenticator interface {
	ValidateAccessToken(ctx context.Context, token string) (*core.Session, error)
}

// Notifications is what the channel needs from the notification service
type Notifications interface {
	MarkRead(ctx context.Context, accountID, notificationID string) error
	SyncMessage(ctx context.Context, accountID string) (core.Message, error)
}

// Handler upgrades authenticated requests to notification channels
type Handler struct {
	auth          Authenticator
	notifications Notifications
	registry      *Registry
	upgrader      websocket.Upgrader
	logger        *slog.Logger
	opTimeout     time.Duration
}

// NewHandler creates the channel handler. checkOrigin may be nil to accept any origin.
func NewHandler(auth Authenticator, notifications Notifications, registry *Registry, checkOrigin func(*http.Request) bool, logger *slog.Logger) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		auth:          auth,
		notifications: notifications,
		registry:      registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:    logger,
		opTimeout: 5 * time.Second,
	}
}

// ServeHTTP authenticates ?token=<access token>, upgrades, sends the unread count and
// then serves mark_read frames until the client or the server closes the channel.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	session, err := h.auth.ValidateAccessToken(r.Context(), token)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, core.ErrInvalidToken) && !errors.Is(err, core.ErrTokenExpired) && !errors.Is(err, core.ErrTokenInvalidated) {
			status = http.StatusInternalServerError
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := NewConnection(uuid.New().String(), session.AccountID, session.RefreshID, socket)
	log := h.logger.With(slog.String("conn_id", conn.id), slog.String("account_id", conn.accountID))

	h.registry.Register(conn)
	go conn.writeLoop()
	log.Info("notification channel opened")

	h.sync(conn, log)
	h.readLoop(conn, log)

	h.registry.Unregister(conn)
	conn.Close(websocket.CloseNormalClosure)
	log.Info("notification channel closed")
}

func (h *Handler) sync(conn *Connection, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	msg, err := h.notifications.SyncMessage(ctx, conn.accountID)
	if err != nil {
		log.Warn("failed to send initial unread count", slog.String("error", err.Error()))
		return
	}
	conn.Enqueue(msg)
}

func (h *Handler) readLoop(conn *Connection, log *slog.Logger) {
	socket := conn.socket
	socket.SetReadLimit(maxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, CloseSessionRevoked) {
				log.Debug("notification channel read failed", slog.String("error", err.Error()))
			}
			return
		}
		_ = socket.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := core.DecodeMessage(data)
		if err != nil {
			log.Debug("ignoring malformed frame", slog.String("error", err.Error()))
			continue
		}
		if msg.Type != core.MessageMarkRead {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
		err = h.notifications.MarkRead(ctx, conn.accountID, msg.NotificationID)
		cancel()
		if err != nil && !errors.Is(err, core.ErrNotificationNotFound) {
			log.Warn("mark_read failed",
				slog.String("notification_id", msg.NotificationID),
				slog.String("error", err.Error()),
			)
		}
	}
}
