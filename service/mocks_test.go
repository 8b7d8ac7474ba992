package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/ports"
)

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishSessionRevoked(ctx context.Context, accountID, refreshID string, reason ports.SessionRevokedReason) error {
	args := m.Called(ctx, accountID, refreshID, reason)
	return args.Error(0)
}

// MockTokenizer delegates to a real tokenizer unless told to fail
type MockTokenizer struct {
	mock.Mock
	ports.Tokenizer
}

func (m *MockTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	args := m.Called(session)
	if err := args.Error(1); err != nil {
		return "", err
	}
	if s := args.String(0); s != "" {
		return s, nil
	}
	return m.Tokenizer.SessionToAccessToken(session)
}

type recordingPusher struct {
	mu       sync.Mutex
	messages map[string][]core.Message
	conns    int
}

func newRecordingPusher(conns int) *recordingPusher {
	return &recordingPusher{messages: make(map[string][]core.Message), conns: conns}
}

func (p *recordingPusher) Push(accountID string, msg core.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[accountID] = append(p.messages[accountID], msg)
	return p.conns
}

func (p *recordingPusher) For(accountID string) []core.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Message(nil), p.messages[accountID]...)
}
