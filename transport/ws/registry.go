package ws

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/metrics"
	"github.com/layer-3/kusaidia/ports"
)

// Registry tracks the open connections of this instance by account
type Registry struct {
	mu        sync.RWMutex
	byAccount map[string]map[string]*Connection
	logger    *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byAccount: make(map[string]map[string]*Connection),
		logger:    logger,
	}
}

var _ ports.NotificationPusher = (*Registry)(nil)

func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byAccount[c.accountID]
	if !ok {
		conns = make(map[string]*Connection)
		r.byAccount[c.accountID] = conns
	}
	conns[c.id] = c
	metrics.ActiveConnections.Inc()
}

func (r *Registry) Unregister(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byAccount[c.accountID]
	if !ok {
		return
	}
	if _, ok := conns[c.id]; !ok {
		return
	}
	delete(conns, c.id)
	if len(conns) == 0 {
		delete(r.byAccount, c.accountID)
	}
	metrics.ActiveConnections.Dec()
}

// Push queues msg on every open connection of the account and returns how many accepted it
func (r *Registry) Push(accountID string, msg core.Message) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.byAccount[accountID]))
	for _, c := range r.byAccount[accountID] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Enqueue(msg) {
			delivered++
		}
	}
	return delivered
}

// DisconnectSession closes every connection opened with the given refresh id
func (r *Registry) DisconnectSession(refreshID string) int {
	r.mu.RLock()
	var targets []*Connection
	for _, conns := range r.byAccount {
		for _, c := range conns {
			if c.refreshID == refreshID {
				targets = append(targets, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Close(CloseSessionRevoked)
	}
	if len(targets) > 0 {
		r.logger.Info("closed connections of revoked session", slog.Int("connections", len(targets)))
	}
	return len(targets)
}

// CloseAll closes every tracked connection with a going-away frame
func (r *Registry) CloseAll() {
	r.mu.RLock()
	var targets []*Connection
	for _, conns := range r.byAccount {
		for _, c := range conns {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Close(websocket.CloseGoingAway)
	}
}

// Count returns the number of open connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conns := range r.byAccount {
		n += len(conns)
	}
	return n
}
