package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/logger"
)

// Error codes let clients tell failures apart without parsing messages
const (
	CodeBadRequest            = "BAD_REQUEST"
	CodeInvalidAddress        = "INVALID_ADDRESS"
	CodeNonceInvalidOrExpired = "NONCE_INVALID_OR_EXPIRED"
	CodeSignatureMismatch     = "SIGNATURE_MISMATCH"
	CodeInvalidRole           = "INVALID_ROLE"
	CodeRoleNotHeld           = "ROLE_NOT_HELD"
	CodeRoleAlreadyPresent    = "ROLE_ALREADY_PRESENT"
	CodeRoleAdditionRequired  = "ROLE_ADDITION_REQUIRED"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenInvalid          = "TOKEN_INVALID"
	CodeTokenRevoked          = "TOKEN_REVOKED"
	CodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	CodeNotificationNotFound  = "NOTIFICATION_NOT_FOUND"
	CodeInternal              = "INTERNAL"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{core.ErrInvalidAddress, http.StatusBadRequest, CodeInvalidAddress},
	{core.ErrNonceInvalidOrExpired, http.StatusUnauthorized, CodeNonceInvalidOrExpired},
	{core.ErrInvalidSignature, http.StatusUnauthorized, CodeSignatureMismatch},
	{core.ErrInvalidRole, http.StatusBadRequest, CodeInvalidRole},
	{core.ErrRoleNotHeld, http.StatusForbidden, CodeRoleNotHeld},
	{core.ErrRoleAlreadyPresent, http.StatusConflict, CodeRoleAlreadyPresent},
	{core.ErrRoleAdditionRequired, http.StatusConflict, CodeRoleAdditionRequired},
	{core.ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired},
	{core.ErrTokenInvalidated, http.StatusUnauthorized, CodeTokenRevoked},
	{core.ErrInvalidToken, http.StatusUnauthorized, CodeTokenInvalid},
	{core.ErrAccountNotFound, http.StatusNotFound, CodeAccountNotFound},
	{core.ErrNotificationNotFound, http.StatusNotFound, CodeNotificationNotFound},
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusOf maps a domain error to its HTTP status and code
func StatusOf(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

func abortWithError(c *gin.Context, err error) {
	status, code := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeBadRequest})
}
