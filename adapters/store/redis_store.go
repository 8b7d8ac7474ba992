package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokeScript sets the revocation marker unless an existing one outlives the new expiry.
var revokeScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl > tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], '1', 'PX', ARGV[1])
return 1
`)

// RedisStore keeps revoked refresh ids as keys that expire with the token.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "kusaidia:revoked:",
	}
}

// Revoke marks tokenID revoked for expiry. An existing longer revocation is kept.
func (s *RedisStore) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	ms := expiry.Milliseconds()
	if ms <= 0 {
		return nil
	}

	if err := revokeScript.Run(ctx, s.client, []string{s.key(tokenID)}, ms).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) key(tokenID string) string {
	return s.prefix + tokenID
}
