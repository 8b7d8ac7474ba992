package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/layer-3/kusaidia/core"
)

// MemoryNonceStore keeps one live challenge per address in memory.
// Expiry is checked lazily on Consume; Sweep only bounds memory.
type MemoryNonceStore struct {
	ttl time.Duration
	now func() time.Time

	mu         sync.Mutex
	challenges map[string]*core.Challenge
}

// NonceOption configures a MemoryNonceStore
type NonceOption func(*MemoryNonceStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) NonceOption {
	return func(s *MemoryNonceStore) {
		s.now = now
	}
}

// NewMemoryNonceStore creates a nonce store whose challenges live for ttl
func NewMemoryNonceStore(ttl time.Duration, opts ...NonceOption) *MemoryNonceStore {
	s := &MemoryNonceStore{
		ttl:        ttl,
		now:        time.Now,
		challenges: make(map[string]*core.Challenge),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue replaces any live challenge for address with a new one
func (s *MemoryNonceStore) Issue(ctx context.Context, address string) (*core.Challenge, error) {
	challenge, err := newChallenge(address, s.ttl, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.challenges[address] = challenge
	s.mu.Unlock()

	cp := *challenge
	return &cp, nil
}

// Consume removes and returns the live challenge for address when value matches
func (s *MemoryNonceStore) Consume(ctx context.Context, address, value string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[address]
	if !ok {
		return nil, core.ErrNonceInvalidOrExpired
	}
	if challenge.Expired(s.now()) {
		delete(s.challenges, address)
		return nil, core.ErrNonceInvalidOrExpired
	}
	if !nonceEqual(challenge.Nonce, value) {
		return nil, core.ErrNonceInvalidOrExpired
	}

	delete(s.challenges, address)
	return challenge, nil
}

// Sweep drops expired challenges and returns how many were removed
func (s *MemoryNonceStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for addr, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, addr)
			removed++
		}
	}
	return removed
}

// Len reports how many challenges are held, live or not
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// RunSweeper sweeps every interval until ctx is done
func (s *MemoryNonceStore) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && logger != nil {
				logger.Debug("swept expired nonces", slog.Int("count", n))
			}
		}
	}
}
