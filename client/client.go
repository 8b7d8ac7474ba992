// Package client is the Go SDK for the kusaidia auth and notification API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/httpclient"
	"github.com/layer-3/kusaidia/internal/logger"
)

// Session is the client side view of an authenticated session.
type Session struct {
	Access    string       `json:"access"`
	Refresh   string       `json:"refresh"`
	ExpiresIn int64        `json:"expires_in"`
	User      core.Profile `json:"user"`
}

// Option configures a Client
type Option func(*Client)

// WithWallet sets the wallet used by Login.
func WithWallet(w Wallet) Option {
	return func(c *Client) { c.wallet = w }
}

// WithHTTPClient replaces the breaker guarded transport.
func WithHTTPClient(h *httpclient.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client drives the wallet login protocol and keeps the session fresh.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *httpclient.Client
	wallet  Wallet
	logger  *slog.Logger

	mu        sync.Mutex
	session   *Session
	listeners []func(*Session)

	refreshMu sync.Mutex
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(httpclient.DefaultConfig("kusaidia-api"), nil, c.logger)
	}
	return c
}

// Session returns a copy of the current session, or nil when logged out.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// OnSession registers fn to run whenever the session is replaced. fn receives
// nil when the session is cleared.
func (c *Client) OnSession(fn func(*Session)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	listeners := append(([]func(*Session))(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		if s == nil {
			fn(nil)
			continue
		}
		cp := *s
		fn(&cp)
	}
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Access
}

func (c *Client) refreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Refresh
}

// send performs one request and decodes a 2xx body into out.
func (c *Client) send(ctx context.Context, method, path, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// call is send for unauthenticated endpoints.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	body, err := encode(in)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, "", body, out)
}

// authed sends with the access token. A 401 triggers one refresh and one retry;
// if the refresh itself fails the session is cleared and core.ErrTokenExpired returned.
func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	body, err := encode(in)
	if err != nil {
		return err
	}

	token := c.accessToken()
	if token == "" {
		return ErrNotAuthenticated
	}

	err = c.send(ctx, method, path, token, body, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	if err := c.refreshFrom(ctx, token); err != nil {
		return err
	}
	return c.send(ctx, method, path, c.accessToken(), body, out)
}

func encode(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return body, nil
}
