package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims carry only what is needed to re-read the account on refresh
type RefreshClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
}
