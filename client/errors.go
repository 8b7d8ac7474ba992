package client

import (
	"errors"
	"fmt"

	"github.com/layer-3/kusaidia/core"
)

var ErrNotAuthenticated = errors.New("not authenticated")

var codeErrors = map[string]error{
	"INVALID_ADDRESS":          core.ErrInvalidAddress,
	"NONCE_INVALID_OR_EXPIRED": core.ErrNonceInvalidOrExpired,
	"SIGNATURE_MISMATCH":       core.ErrInvalidSignature,
	"INVALID_ROLE":             core.ErrInvalidRole,
	"ROLE_NOT_HELD":            core.ErrRoleNotHeld,
	"ROLE_ALREADY_PRESENT":     core.ErrRoleAlreadyPresent,
	"ROLE_ADDITION_REQUIRED":   core.ErrRoleAdditionRequired,
	"TOKEN_EXPIRED":            core.ErrTokenExpired,
	"TOKEN_INVALID":            core.ErrInvalidToken,
	"TOKEN_REVOKED":            core.ErrTokenInvalidated,
	"ACCOUNT_NOT_FOUND":        core.ErrAccountNotFound,
	"NOTIFICATION_NOT_FOUND":   core.ErrNotificationNotFound,
}

// APIError is a non-2xx response. It unwraps to the matching core error so
// callers can use errors.Is(err, core.ErrRoleAdditionRequired).
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}
