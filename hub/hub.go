// Package hub keeps a client's notification list in sync with the server over the
// notification channel, reconnecting with backoff and falling back to REST polling.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/logger"
	"github.com/layer-3/kusaidia/internal/metrics"
)

// State of the current connection
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Source is the durable notification store, reached over REST.
type Source interface {
	// Fetch returns the newest notifications and the unread count.
	Fetch(ctx context.Context) ([]core.Notification, int, error)
	MarkRead(ctx context.Context, id string) error
}

// Snapshot is a copy of the hub's view of the account's notifications.
type Snapshot struct {
	State         State
	Polling       bool
	Unread        int
	Notifications []core.Notification
}

// Option configures a Hub
type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithOnChange registers a callback run after every state or list change.
// It runs on the hub's goroutines and must not block.
func WithOnChange(fn func(Snapshot)) Option {
	return func(h *Hub) { h.onChange = fn }
}

// Hub holds one logical notification stream for a session. A single supervisor
// goroutine owns the connection, the reconnect backoff and the polling fallback,
// so at most one of them is active at any time.
type Hub struct {
	cfg      Config
	dialer   Dialer
	source   Source
	logger   *slog.Logger
	onChange func(Snapshot)

	mu      sync.Mutex
	token   string
	state   State
	polling bool
	conn    Conn
	items   []core.Notification
	index   map[string]int
	unread  int

	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool
}

// New creates a hub. It does nothing until Start.
func New(cfg Config, dialer Dialer, source Source, opts ...Option) *Hub {
	h := &Hub{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		source: source,
		logger: logger.Discard(),
		index:  make(map[string]int),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var ErrHubClosed = errors.New("hub closed")

// Start connects with accessToken and keeps the stream alive until Close.
func (h *Hub) Start(accessToken string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if h.started {
		return nil
	}
	h.started = true
	h.token = accessToken

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.run(ctx)
	return nil
}

// Rebind switches the hub to a new access token, e.g. after a role switch.
// The open connection, pending backoff or polling is abandoned and a fresh
// connection is made with the new token.
func (h *Hub) Rebind(accessToken string) {
	h.mu.Lock()
	h.token = accessToken
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Close tears the hub down, cancelling any connection, backoff timer or poll
// timer, and waits for the supervisor to exit. It is safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	started := h.started
	cancel := h.cancel
	h.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-h.done
}

// Snapshot returns a copy of the current state
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() Snapshot {
	items := make([]core.Notification, len(h.items))
	copy(items, h.items)
	return Snapshot{State: h.state, Polling: h.polling, Unread: h.unread, Notifications: items}
}

// Offline reports whether the hub has no open connection.
func (h *Hub) Offline() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != StateOpen
}

// MarkRead flips the notification locally, tells the server over the open
// connection if there is one, and makes the durable call through the Source.
func (h *Hub) MarkRead(ctx context.Context, id string) error {
	h.mu.Lock()
	if i, ok := h.index[id]; ok && !h.items[i].Read {
		h.items[i].Read = true
		if h.unread > 0 {
			h.unread--
		}
	}
	conn := h.conn
	h.mu.Unlock()
	h.changed()

	if conn != nil {
		if err := conn.WriteMessage(core.MarkReadMessage(id)); err != nil {
			h.logger.Debug("mark_read frame not sent", slog.String("error", err.Error()))
		}
	}
	return h.source.MarkRead(ctx, id)
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.setState(StateClosed, nil)

	b := newBackOff(h.cfg)
	for {
		conn, err := h.dial(ctx)
		if err == nil {
			opened := time.Now()
			h.pollOnce(ctx)
			rebound := h.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			// Only a connection that held for MaxDelay earns a fresh schedule
			if rebound || time.Since(opened) >= h.cfg.MaxDelay {
				b.Reset()
			}
			if rebound {
				continue
			}
			err = core.ErrConnectionLost
		}
		if ctx.Err() != nil {
			return
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			h.logger.Info("reconnect attempts exhausted, polling", slog.Duration("interval", h.cfg.PollInterval))
			if !h.poll(ctx) {
				return
			}
			b.Reset()
			continue
		}

		h.logger.Debug("notification channel unavailable, retrying",
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if !h.wait(ctx, delay) {
			return
		}
	}
}

func (h *Hub) dial(ctx context.Context) (Conn, error) {
	h.setState(StateConnecting, nil)

	h.mu.Lock()
	token := h.token
	h.mu.Unlock()

	conn, err := h.dialer.Dial(ctx, token)
	metrics.HubReconnects.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		h.setState(StateClosed, nil)
		return nil, err
	}
	h.setState(StateOpen, conn)
	return conn, nil
}

// serve reads frames until the connection drops, the hub closes or a rebind
// arrives. It reports whether a rebind ended the connection.
func (h *Hub) serve(ctx context.Context, conn Conn) bool {
	var rebound atomic.Bool
	stop := make(chan struct{})
	watcher := make(chan struct{})

	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
		case <-h.wake:
			rebound.Store(true)
		case <-stop:
			return
		}
		conn.Close()
	}()

	for {
		msg, err := conn.ReadMessage()
		if errors.Is(err, core.ErrInvalidMessage) {
			h.logger.Debug("ignoring malformed frame", slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			h.logger.Debug("notification channel closed", slog.String("error", err.Error()))
			break
		}
		h.apply(msg)
	}
	close(stop)
	<-watcher
	conn.Close()
	h.setState(StateClosed, nil)
	return rebound.Load()
}

// wait sleeps for d. It returns false when the hub is closing.
// A rebind cuts the wait short.
func (h *Hub) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-h.wake:
		return true
	case <-timer.C:
		return true
	}
}

// poll fetches from the Source immediately and then every PollInterval until a
// rebind asks for a new connection (true) or the hub closes (false).
func (h *Hub) poll(ctx context.Context) bool {
	h.setPolling(true)
	defer h.setPolling(false)

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		h.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return false
		case <-h.wake:
			return true
		case <-ticker.C:
		}
	}
}

func (h *Hub) pollOnce(ctx context.Context) {
	items, unread, err := h.source.Fetch(ctx)
	metrics.HubPolls.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("notification poll failed", slog.String("error", err.Error()))
		}
		return
	}

	h.mu.Lock()
	// Oldest first so the newest ends up on top
	for i := len(items) - 1; i >= 0; i-- {
		h.addLocked(items[i])
	}
	h.unread = unread
	h.mu.Unlock()
	h.changed()
}

// apply handles one server frame. A notification id seen before is ignored, so
// at-least-once delivery never double counts.
func (h *Hub) apply(msg core.Message) {
	h.mu.Lock()
	switch msg.Type {
	case core.MessageNotification:
		if h.addLocked(*msg.Notification) && !msg.Notification.Read {
			h.unread++
		}
	case core.MessageUnreadCount:
		h.unread = *msg.Count
	}
	h.mu.Unlock()
	h.changed()
}

func (h *Hub) addLocked(n core.Notification) bool {
	if i, ok := h.index[n.ID]; ok {
		// Read only moves forward
		if n.Read {
			h.items[i].Read = true
		}
		return false
	}

	h.items = append([]core.Notification{n}, h.items...)
	if len(h.items) > h.cfg.MaxItems {
		for _, old := range h.items[h.cfg.MaxItems:] {
			delete(h.index, old.ID)
		}
		h.items = h.items[:h.cfg.MaxItems]
	}
	for i, item := range h.items {
		h.index[item.ID] = i
	}
	return true
}

func (h *Hub) setState(s State, conn Conn) {
	h.mu.Lock()
	h.state = s
	h.conn = conn
	h.mu.Unlock()
	h.changed()
}

func (h *Hub) setPolling(p bool) {
	h.mu.Lock()
	h.polling = p
	h.mu.Unlock()
	h.changed()
}

func (h *Hub) changed() {
	if h.onChange == nil {
		return
	}
	h.onChange(h.Snapshot())
}
