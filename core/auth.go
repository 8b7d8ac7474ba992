package core

import (
	"fmt"
	"time"
)

// Challenge represents an authentication challenge (a one-time nonce)
type Challenge struct {
	Address   string    // Normalized wallet address the nonce was issued to
	Nonce     string    // Random 128-bit value, hex encoded
	Message   string    // Human-readable text the wallet signs
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// Expired reports whether the challenge is no longer usable at now.
// A challenge is rejected from exactly ExpiresAt onwards.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeMessage builds the text a wallet signs for the given address and nonce.
func ChallengeMessage(address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf(
		"Sign this message to authenticate with KUSAIDIA.\n\nWallet: %s\nNonce: %s\nIssued At: %s",
		address, nonce, issuedAt.UTC().Format(time.RFC3339),
	)
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier (access token ID)
	AccountID     string    // Account the session belongs to
	Address       string    // Wallet address of the account
	Role          Role      // Active role claim, authoritative for the token lifetime
	IssuedAt      time.Time // When the session was created
	AccessExpiry  time.Time // When the access capability expires
	RefreshExpiry time.Time // When the refresh capability expires
	RefreshID     string    // Unique identifier for the refresh token

	AccessToken  string
	RefreshToken string
}
