package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/ports"
)

// SessionIssuer mints and validates paired access and refresh tokens
type SessionIssuer struct {
	tokenizer   ports.Tokenizer
	revocations ports.RevocationStore

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSessionIssuer creates a session issuer
func NewSessionIssuer(tokenizer ports.Tokenizer, revocations ports.RevocationStore, accessTTL, refreshTTL time.Duration) *SessionIssuer {
	return &SessionIssuer{
		tokenizer:   tokenizer,
		revocations: revocations,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

// AccessTTL is the lifetime of issued access tokens
func (i *SessionIssuer) AccessTTL() time.Duration { return i.accessTTL }

// Issue mints a session carrying the account's active role
func (i *SessionIssuer) Issue(acc *core.Account) (*core.Session, error) {
	now := i.now()
	session := &core.Session{
		ID:            uuid.New().String(),
		AccountID:     acc.ID,
		Address:       acc.Address,
		Role:          acc.ActiveRole,
		IssuedAt:      now,
		AccessExpiry:  now.Add(i.accessTTL),
		RefreshExpiry: now.Add(i.refreshTTL),
		RefreshID:     uuid.New().String(),
	}

	var err error
	session.AccessToken, err = i.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	session.RefreshToken, err = i.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return session, nil
}

// VerifyAccess checks signature and expiry of an access token and rejects it once
// its refresh token has been revoked by logout or a role switch.
func (i *SessionIssuer) VerifyAccess(ctx context.Context, token string) (*core.Session, error) {
	session, err := i.tokenizer.AccessTokenToSession(token)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if !i.now().Before(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	if session.RefreshID != "" {
		if err := i.checkRevoked(ctx, session.RefreshID); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// ParseRefresh validates a refresh token that has not been rotated or revoked
func (i *SessionIssuer) ParseRefresh(ctx context.Context, token string) (*core.Session, error) {
	session, err := i.tokenizer.RefreshTokenToSession(token)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if !i.now().Before(session.RefreshExpiry) {
		return nil, core.ErrTokenExpired
	}
	if err := i.checkRevoked(ctx, session.RefreshID); err != nil {
		return nil, err
	}
	return session, nil
}

// Revoke stops honouring the session's refresh token and every access token minted with it.
// A zero refreshExpiry revokes for the full refresh lifetime.
func (i *SessionIssuer) Revoke(ctx context.Context, refreshID string, refreshExpiry time.Time) error {
	remaining := i.refreshTTL
	if !refreshExpiry.IsZero() {
		remaining = refreshExpiry.Sub(i.now())
	}
	if remaining <= 0 {
		// Access tokens can outlive a refresh token that just expired
		remaining = i.accessTTL
	}
	if err := i.revocations.Revoke(ctx, refreshID, remaining); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (i *SessionIssuer) checkRevoked(ctx context.Context, refreshID string) error {
	revoked, err := i.revocations.IsRevoked(ctx, refreshID)
	if err != nil {
		return fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return core.ErrTokenInvalidated
	}
	return nil
}

func classifyTokenError(err error) error {
	if errors.Is(err, core.ErrTokenExpired) || errors.Is(err, core.ErrInvalidToken) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
}
