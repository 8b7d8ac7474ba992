package ports

import "github.com/layer-3/kusaidia/core"

// Tokenizer converts between sessions and signed tokens
type Tokenizer interface {
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)
}

// SignatureVerifier checks wallet signatures. It never fails on attacker input, it returns false.
type SignatureVerifier interface {
	Verify(address, message, signature string) bool
}
