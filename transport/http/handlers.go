package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/service"
)

// SessionResponse is returned by every endpoint that mints a session
type SessionResponse struct {
	Access    string       `json:"access"`
	Refresh   string       `json:"refresh"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in"`
	User      core.Profile `json:"user"`
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

func (h *AuthHandlers) sessionResponse(c *gin.Context, session *core.Session, acc *core.Account) {
	c.JSON(http.StatusOK, SessionResponse{
		Access:    session.AccessToken,
		Refresh:   session.RefreshToken,
		TokenType: "Bearer",
		ExpiresIn: h.authService.AccessTTL(),
		User:      core.ProfileOf(acc),
	})
}

// Nonce issues a login challenge for a wallet
func (h *AuthHandlers) Nonce(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "wallet_address is required")
		return
	}

	challenge, err := h.authService.RequestChallenge(c.Request.Context(), req.WalletAddress)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":      challenge.Nonce,
		"message":    challenge.Message,
		"expires_at": challenge.ExpiresAt,
	})
}

// Verify checks the signed challenge and opens a session
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
		Nonce         string `json:"nonce" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "wallet_address, signature and nonce are required")
		return
	}

	session, acc, err := h.authService.VerifyAndLogin(c.Request.Context(), req.WalletAddress, req.Signature, req.Nonce)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.sessionResponse(c, session, acc)
}

// Refresh rotates the refresh token
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh is required")
		return
	}

	session, acc, err := h.authService.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.sessionResponse(c, session, acc)
}

// Logout revokes the refresh token
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh is required")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.Refresh); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the caller's profile
func (h *AuthHandlers) Me(c *gin.Context) {
	acc, err := h.authService.Me(c.Request.Context(), currentSession(c).AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, core.ProfileOf(acc))
}

// Authorize reports the identity and role an access token carries
func (h *AuthHandlers) Authorize(c *gin.Context) {
	s := currentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"account_id": s.AccountID,
		"address":    s.Address,
		"role":       s.Role,
	})
}

// Roles lists the caller's roles
func (h *AuthHandlers) Roles(c *gin.Context) {
	roles, err := h.authService.Roles(c.Request.Context(), currentSession(c).AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

type roleRequest struct {
	RoleType string `json:"role_type" binding:"required"`
	Confirm  bool   `json:"confirm"`
}

func bindRole(c *gin.Context) (roleRequest, core.Role, bool) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role_type is required")
		return req, "", false
	}
	role, err := core.ParseRole(req.RoleType)
	if err != nil {
		abortWithError(c, err)
		return req, "", false
	}
	return req, role, true
}

// AddRole adds a role to the caller's account
func (h *AuthHandlers) AddRole(c *gin.Context) {
	_, role, ok := bindRole(c)
	if !ok {
		return
	}

	roles, added, err := h.authService.AddRole(c.Request.Context(), currentSession(c).AccountID, role)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles, "added": added})
}

// SwitchRole changes the active role and returns the superseding session
func (h *AuthHandlers) SwitchRole(c *gin.Context) {
	_, role, ok := bindRole(c)
	if !ok {
		return
	}

	session, acc, err := h.authService.SwitchRole(c.Request.Context(), currentSession(c), role)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.sessionResponse(c, session, acc)
}

// EnsureRole switches to a role, adding it first only when the request confirms it
func (h *AuthHandlers) EnsureRole(c *gin.Context) {
	req, role, ok := bindRole(c)
	if !ok {
		return
	}

	session, acc, err := h.authService.EnsureRole(c.Request.Context(), currentSession(c), role, req.Confirm)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.sessionResponse(c, session, acc)
}
