package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/kusaidia/core"
)

// consumeScript deletes the challenge hash only when the nonce matches, in one round trip.
var consumeScript = redis.NewScript(`
local nonce = redis.call('HGET', KEYS[1], 'nonce')
if not nonce or nonce ~= ARGV[1] then
  return false
end
local fields = redis.call('HGETALL', KEYS[1])
redis.call('DEL', KEYS[1])
return fields
`)

// RedisNonceStore keeps challenges in Redis hashes that expire with the nonce TTL
type RedisNonceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "kusaidia:nonce:",
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue overwrites the challenge hash for address
func (s *RedisNonceStore) Issue(ctx context.Context, address string) (*core.Challenge, error) {
	challenge, err := newChallenge(address, s.ttl, s.now())
	if err != nil {
		return nil, err
	}

	key := s.prefix + address
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"nonce", challenge.Nonce,
			"message", challenge.Message,
			"issued_at", strconv.FormatInt(challenge.IssuedAt.UnixNano(), 10),
			"expires_at", strconv.FormatInt(challenge.ExpiresAt.UnixNano(), 10),
		)
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}

	return challenge, nil
}

// Consume atomically deletes and returns the challenge when value matches
func (s *RedisNonceStore) Consume(ctx context.Context, address, value string) (*core.Challenge, error) {
	raw, err := consumeScript.Run(ctx, s.client, []string{s.prefix + address}, value).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNonceInvalidOrExpired
		}
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}

	challenge, err := parseChallenge(address, raw)
	if err != nil {
		return nil, err
	}
	// Redis expiry is the primary bound; this guards against clock skew between instances.
	if challenge.Expired(s.now()) {
		return nil, core.ErrNonceInvalidOrExpired
	}

	return challenge, nil
}

func parseChallenge(address string, pairs []string) (*core.Challenge, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("failed to parse nonce record: odd field count")
	}

	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields[pairs[i]] = pairs[i+1]
	}

	issued, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nonce issued_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nonce expires_at: %w", err)
	}

	return &core.Challenge{
		Address:   address,
		Nonce:     fields["nonce"],
		Message:   fields["message"],
		IssuedAt:  time.Unix(0, issued),
		ExpiresAt: time.Unix(0, expires),
	}, nil
}
