package mtproto

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
)

// memorySession is a session.Storage seeded from and dumped to a token.
type memorySession struct {
	mu   sync.Mutex
	data []byte
}

var _ session.Storage = (*memorySession)(nil)

func newMemorySession(token string) (*memorySession, error) {
	s := &memorySession{}
	if token == "" {
		return s, nil
	}
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode session token: %w", err)
	}
	s.data = b
	return s, nil
}

func (s *memorySession) LoadSession(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *memorySession) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	s.data = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// Token returns the current session as a token, or "" when nothing was stored.
func (s *memorySession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.data)
}
