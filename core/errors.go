package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")

	ErrInvalidAddress        = errors.New("invalid wallet address")
	ErrNonceInvalidOrExpired = errors.New("nonce is invalid or expired")

	ErrInvalidRole          = errors.New("invalid role")
	ErrRoleNotHeld          = errors.New("role not held by account")
	ErrRoleAlreadyPresent   = errors.New("role already present")
	ErrRoleAdditionRequired = errors.New("role must be added before it can be used")

	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidMessage       = errors.New("invalid channel message")

	// ErrConnectionLost is recoverable: the hub reconnects or polls.
	ErrConnectionLost = errors.New("notification connection lost")

	// ErrWalletProviderUnavailable is an environment precondition and is never retried.
	ErrWalletProviderUnavailable = errors.New("wallet provider unavailable")
)
