package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/layer-3/kusaidia/core"
)

type roleRequest struct {
	RoleType string `json:"role_type"`
	Confirm  bool   `json:"confirm,omitempty"`
}

// Login requests a challenge, has the wallet sign it and exchanges the signature for a session.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	if c.wallet == nil {
		return nil, core.ErrWalletProviderUnavailable
	}
	address := c.wallet.Address()

	var challenge struct {
		Nonce   string `json:"nonce"`
		Message string `json:"message"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/nonce", map[string]string{"wallet_address": address}, &challenge); err != nil {
		return nil, err
	}

	signature, err := c.wallet.SignMessage(ctx, challenge.Message)
	if err != nil {
		return nil, fmt.Errorf("wallet refused to sign: %w", err)
	}

	var session Session
	err = c.call(ctx, http.MethodPost, "/auth/verify", map[string]string{
		"wallet_address": address,
		"signature":      signature,
		"nonce":          challenge.Nonce,
	}, &session)
	if err != nil {
		return nil, err
	}

	c.setSession(&session)
	c.logger.Info("logged in", slog.String("account_id", session.User.ID), slog.String("role", session.User.UserType.String()))
	return c.Session(), nil
}

// Refresh rotates the session's tokens.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refreshFrom(ctx, c.accessToken())
}

// refreshFrom refreshes unless another caller already replaced the access token seen as stale.
func (c *Client) refreshFrom(ctx context.Context, staleAccess string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.accessToken(); current != "" && current != staleAccess {
		return nil
	}

	refresh := c.refreshToken()
	if refresh == "" {
		return ErrNotAuthenticated
	}

	var session Session
	err := c.call(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh": refresh}, &session)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.setSession(nil)
		return fmt.Errorf("%w: session ended, log in again", core.ErrTokenExpired)
	}
	if err != nil {
		return err
	}

	c.setSession(&session)
	return nil
}

// Logout revokes the refresh token and clears the session. The local session is
// cleared even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.refreshToken()
	if refresh == "" {
		return nil
	}
	defer c.setSession(nil)
	return c.call(ctx, http.MethodPost, "/auth/logout", map[string]string{"refresh": refresh}, nil)
}

// Me returns the account profile.
func (c *Client) Me(ctx context.Context) (core.Profile, error) {
	var p core.Profile
	err := c.authed(ctx, http.MethodGet, "/auth/me", nil, &p)
	return p, err
}

// Roles lists the roles held by the account.
func (c *Client) Roles(ctx context.Context) ([]core.Role, error) {
	var out struct {
		Roles []core.Role `json:"roles"`
	}
	if err := c.authed(ctx, http.MethodGet, "/auth/roles", nil, &out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// AddRole adds role to the account. added is false when it was already held.
func (c *Client) AddRole(ctx context.Context, role core.Role) (roles []core.Role, added bool, err error) {
	var out struct {
		Roles []core.Role `json:"roles"`
		Added bool        `json:"added"`
	}
	if err := c.authed(ctx, http.MethodPost, "/auth/add-role", roleRequest{RoleType: role.String()}, &out); err != nil {
		return nil, false, err
	}
	return out.Roles, out.Added, nil
}

// SwitchRole activates a held role and adopts the superseding session.
func (c *Client) SwitchRole(ctx context.Context, role core.Role) (*Session, error) {
	return c.roleSession(ctx, "/auth/switch-role", roleRequest{RoleType: role.String()})
}

// EnsureRole activates role. When the account lacks it, confirm is asked whether
// to add it; a nil confirm or a refusal returns core.ErrRoleAdditionRequired.
func (c *Client) EnsureRole(ctx context.Context, role core.Role, confirm func(core.Role) bool) (*Session, error) {
	s, err := c.roleSession(ctx, "/auth/ensure-role", roleRequest{RoleType: role.String()})
	if !errors.Is(err, core.ErrRoleAdditionRequired) {
		return s, err
	}
	if confirm == nil || !confirm(role) {
		return nil, err
	}
	return c.roleSession(ctx, "/auth/ensure-role", roleRequest{RoleType: role.String(), Confirm: true})
}

func (c *Client) roleSession(ctx context.Context, path string, req roleRequest) (*Session, error) {
	var session Session
	if err := c.authed(ctx, http.MethodPost, path, req, &session); err != nil {
		return nil, err
	}
	c.setSession(&session)
	return c.Session(), nil
}
