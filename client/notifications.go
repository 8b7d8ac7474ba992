package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/hub"
)

const fetchPageSize = 20

// NotificationPage is one page of the notification list.
type NotificationPage struct {
	Count   int                 `json:"count"`
	Results []core.Notification `json:"results"`
}

// NotificationsAPI is the REST side of the notification channel. It is the
// polling Source of a hub.Hub.
type NotificationsAPI struct {
	client *Client
}

func (c *Client) Notifications() *NotificationsAPI {
	return &NotificationsAPI{client: c}
}

// List returns page (starting at 1) of the notifications, newest first.
func (n *NotificationsAPI) List(ctx context.Context, page, perPage int) (NotificationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var out NotificationPage
	err := n.client.authed(ctx, http.MethodGet, "/notifications/?"+q.Encode(), nil, &out)
	return out, err
}

func (n *NotificationsAPI) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := n.client.authed(ctx, http.MethodGet, "/notifications/unread_count/", nil, &out)
	return out.Count, err
}

func (n *NotificationsAPI) MarkRead(ctx context.Context, id string) error {
	return n.client.authed(ctx, http.MethodPost, "/notifications/"+url.PathEscape(id)+"/mark_read/", nil, nil)
}

// MarkAllRead returns how many notifications changed.
func (n *NotificationsAPI) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Marked int `json:"marked"`
	}
	err := n.client.authed(ctx, http.MethodPost, "/notifications/mark_all_read/", nil, &out)
	return out.Marked, err
}

// Fetch returns the first page and the unread count.
func (n *NotificationsAPI) Fetch(ctx context.Context) ([]core.Notification, int, error) {
	page, err := n.List(ctx, 1, fetchPageSize)
	if err != nil {
		return nil, 0, err
	}
	unread, err := n.UnreadCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return page.Results, unread, nil
}

// ConnectHub starts a hub on the notification channel at wsURL. The hub follows
// the session: it reconnects with every new access token and closes on logout.
func (c *Client) ConnectHub(wsURL string, cfg hub.Config, opts ...hub.Option) (*hub.Hub, error) {
	token := c.accessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	h := hub.New(cfg, hub.NewWebsocketDialer(wsURL), c.Notifications(), opts...)
	c.OnSession(func(s *Session) {
		if s == nil {
			// The hub's own poll can end the session, so never wait on it here
			go h.Close()
			return
		}
		h.Rebind(s.Access)
	})
	if err := h.Start(token); err != nil {
		return nil, err
	}
	return h, nil
}
