package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/logger"
	"github.com/layer-3/kusaidia/internal/metrics"
	"github.com/layer-3/kusaidia/ports"
)

// AuthService drives the wallet login and role switch protocols
type AuthService struct {
	nonces   ports.NonceStore
	verifier ports.SignatureVerifier
	sessions *SessionIssuer
	roles    *RoleManager
	eventPub ports.EventPublisher

	defaultRole core.Role
	logger      *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces ports.NonceStore,
	verifier ports.SignatureVerifier,
	sessions *SessionIssuer,
	roles *RoleManager,
	eventPub ports.EventPublisher,
	defaultRole core.Role,
	log *slog.Logger,
) *AuthService {
	if log == nil {
		log = logger.Discard()
	}
	return &AuthService{
		nonces:      nonces,
		verifier:    verifier,
		sessions:    sessions,
		roles:       roles,
		eventPub:    eventPub,
		defaultRole: defaultRole,
		logger:      log,
	}
}

// AccessTTL is the lifetime of the access tokens this service issues
func (s *AuthService) AccessTTL() int64 {
	return int64(s.sessions.AccessTTL().Seconds())
}

// RequestChallenge issues a fresh nonce for address, replacing any earlier one
func (s *AuthService) RequestChallenge(ctx context.Context, address string) (*core.Challenge, error) {
	normalized, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	challenge, err := s.nonces.Issue(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to issue challenge: %w", err)
	}
	return challenge, nil
}

// VerifyAndLogin consumes the nonce, checks the signature over its challenge message and
// opens a session for the wallet's account, creating the account on first login.
func (s *AuthService) VerifyAndLogin(ctx context.Context, address, signature, nonce string) (*core.Session, *core.Account, error) {
	session, acc, err := s.verifyAndLogin(ctx, address, signature, nonce)
	metrics.LoginAttempts.WithLabelValues(loginResult(err)).Inc()
	return session, acc, err
}

func (s *AuthService) verifyAndLogin(ctx context.Context, address, signature, nonce string) (*core.Session, *core.Account, error) {
	normalized, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, nil, err
	}

	// Consume first so a replayed signature fails without a key recovery
	challenge, err := s.nonces.Consume(ctx, normalized, nonce)
	if err != nil {
		return nil, nil, err
	}

	if !s.verifier.Verify(normalized, challenge.Message, signature) {
		return nil, nil, core.ErrInvalidSignature
	}

	acc, err := s.roles.Register(ctx, normalized, s.defaultRole)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.Issue(acc)
	if err != nil {
		return nil, nil, err
	}

	logger.FromContext(ctx).Info("wallet login",
		slog.String("account_id", acc.ID),
		slog.String("role", acc.ActiveRole.String()),
	)
	return session, acc, nil
}

// Me returns the caller's account
func (s *AuthService) Me(ctx context.Context, accountID string) (*core.Account, error) {
	return s.roles.Account(ctx, accountID)
}

// Roles returns the roles the caller holds
func (s *AuthService) Roles(ctx context.Context, accountID string) ([]core.Role, error) {
	return s.roles.ListRoles(ctx, accountID)
}

// AddRole adds role to the caller's account. Adding a held role is acknowledged
// without change and reported through added=false.
func (s *AuthService) AddRole(ctx context.Context, accountID string, role core.Role) (roles []core.Role, added bool, err error) {
	roles, err = s.roles.AddRole(ctx, accountID, role)
	if errors.Is(err, core.ErrRoleAlreadyPresent) {
		roles, err = s.roles.ListRoles(ctx, accountID)
		return roles, false, err
	}
	if err != nil {
		return nil, false, err
	}
	metrics.RoleTransitions.WithLabelValues("add", role.String()).Inc()
	return roles, true, nil
}

// SwitchRole makes role the caller's active role and supersedes the caller's session.
// The role change is only stored once the new session has been minted.
func (s *AuthService) SwitchRole(ctx context.Context, caller *core.Session, role core.Role) (*core.Session, *core.Account, error) {
	return s.transition(ctx, caller, role, func(acc *core.Account) (bool, error) {
		return switchRole(acc, role)
	})
}

// EnsureRole makes role active for the caller, adding it first when confirmed is set.
// Without confirmation a missing role yields core.ErrRoleAdditionRequired and nothing changes.
func (s *AuthService) EnsureRole(ctx context.Context, caller *core.Session, role core.Role, confirmed bool) (*core.Session, *core.Account, error) {
	return s.transition(ctx, caller, role, func(acc *core.Account) (bool, error) {
		if !role.Valid() {
			return false, core.ErrInvalidRole
		}
		added := false
		if !acc.HasRole(role) {
			if !confirmed {
				return false, core.ErrRoleAdditionRequired
			}
			if _, err := addRole(acc, role); err != nil {
				return false, err
			}
			added = true
		}
		switched, err := switchRole(acc, role)
		return added || switched, err
	})
}

func (s *AuthService) transition(
	ctx context.Context,
	caller *core.Session,
	role core.Role,
	mutate func(acc *core.Account) (bool, error),
) (*core.Session, *core.Account, error) {
	var session *core.Session
	acc, err := s.roles.Transition(ctx, caller.AccountID, mutate, func(next *core.Account) error {
		var err error
		session, err = s.sessions.Issue(next)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	metrics.RoleTransitions.WithLabelValues("switch", role.String()).Inc()

	s.supersede(ctx, caller, ports.ReasonRoleSwitch)
	return session, acc, nil
}

// supersede revokes the caller's previous session. The new session is already
// authoritative, so failures only delay the old one going stale and are logged.
func (s *AuthService) supersede(ctx context.Context, caller *core.Session, reason ports.SessionRevokedReason) {
	if caller.RefreshID == "" {
		return
	}
	log := logger.FromContext(ctx)

	if err := s.sessions.Revoke(ctx, caller.RefreshID, caller.RefreshExpiry); err != nil {
		log.Warn("failed to revoke superseded session",
			slog.String("refresh_id", caller.RefreshID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.publishRevoked(ctx, caller.AccountID, caller.RefreshID, reason)
}

func (s *AuthService) publishRevoked(ctx context.Context, accountID, refreshID string, reason ports.SessionRevokedReason) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishSessionRevoked(ctx, accountID, refreshID, reason); err != nil {
		logger.FromContext(ctx).Warn("failed to publish session revoked event",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
	}
}

// Refresh rotates the refresh token. The new session carries the account's current
// active role, never the one recorded in the old token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*core.Session, *core.Account, error) {
	old, err := s.sessions.ParseRefresh(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}

	// Invalidate the old refresh token before minting a new one
	if err := s.sessions.Revoke(ctx, old.RefreshID, old.RefreshExpiry); err != nil {
		return nil, nil, err
	}

	acc, err := s.roles.Account(ctx, old.AccountID)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.Issue(acc)
	if err != nil {
		return nil, nil, err
	}
	return session, acc, nil
}

// Logout revokes the refresh token and every access token minted with it.
// An already expired refresh token is treated as logged out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessions.ParseRefresh(ctx, refreshToken)
	switch {
	case errors.Is(err, core.ErrTokenExpired), errors.Is(err, core.ErrTokenInvalidated):
		return nil
	case err != nil:
		return err
	}

	if err := s.sessions.Revoke(ctx, session.RefreshID, session.RefreshExpiry); err != nil {
		return err
	}
	s.publishRevoked(ctx, session.AccountID, session.RefreshID, ports.ReasonLogout)
	return nil
}

// ValidateAccessToken returns the session an access token authorizes
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	return s.sessions.VerifyAccess(ctx, accessToken)
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrNonceInvalidOrExpired):
		return "nonce_invalid"
	case errors.Is(err, core.ErrInvalidSignature):
		return "signature_mismatch"
	case errors.Is(err, core.ErrInvalidAddress):
		return "invalid_address"
	default:
		return "error"
	}
}
