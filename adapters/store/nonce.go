package store

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/layer-3/kusaidia/core"
)

// nonceBytes gives a 128-bit challenge value
const nonceBytes = 16

func newChallenge(address string, ttl time.Duration, now time.Time) (*core.Challenge, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	return &core.Challenge{
		Address:   address,
		Nonce:     nonce,
		Message:   core.ChallengeMessage(address, nonce, now),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func nonceEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
