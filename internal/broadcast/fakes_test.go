package broadcast

import (
	"context"
	"errors"
	"sync"

	"postbot/internal/accounts"
	"postbot/internal/storage"
)

type memStore struct {
	mu       sync.Mutex
	accounts []storage.Account
	dests    []storage.Destination
	message  *storage.MessageDraft
	logs     []storage.LogEntry
}

func (s *memStore) ListActiveAccounts(_ context.Context, userID int64) ([]storage.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListActiveDestinations(_ context.Context, userID int64) ([]storage.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Destination
	for _, d := range s.dests {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) CurrentMessage(_ context.Context, userID int64) (storage.MessageDraft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.message == nil || s.message.UserID != userID {
		return storage.MessageDraft{}, false, nil
	}
	return *s.message, true, nil
}

func (s *memStore) AppendLog(_ context.Context, e storage.LogEntry) error {
	s.mu.Lock()
	s.logs = append(s.logs, e)
	s.mu.Unlock()
	return nil
}

func (s *memStore) actions(action string) []storage.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.LogEntry
	for _, e := range s.logs {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type sendCall struct {
	phone string
	dest  string
	text  string
}

type fakeSender struct {
	mu        sync.Mutex
	calls     []sendCall
	acquired  []string
	released  []string
	sendErr   map[string]error
	acquireEr map[string]error
	// block, when set, makes every send wait for it or for ctx
	block chan struct{}
	panicOn string
}

type fakeConn struct{ phone string }

func (c *fakeConn) Send(context.Context, string, string) error { return nil }
func (c *fakeConn) Authorized() bool                            { return true }
func (c *fakeConn) Close() error                                { return nil }

func (f *fakeSender) Credentials(phone, apiID, apiHash string) (accounts.Credentials, error) {
	return accounts.Credentials{APIID: 1, APIHash: "h", Phone: phone}, nil
}

func (f *fakeSender) Acquire(_ context.Context, creds accounts.Credentials, token string) (accounts.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.acquireEr[creds.Phone]; err != nil {
		return nil, &accounts.ConnectionError{Phone: creds.Phone, Err: err}
	}
	if token == "" {
		return nil, errors.New("acquire without token")
	}
	f.acquired = append(f.acquired, creds.Phone)
	return &fakeConn{phone: creds.Phone}, nil
}

func (f *fakeSender) Release(phone string, _ bool) {
	f.mu.Lock()
	f.released = append(f.released, phone)
	f.mu.Unlock()
}

func (f *fakeSender) SendOne(ctx context.Context, conn accounts.Conn, dest, text string) error {
	phone := conn.(*fakeConn).phone
	if f.panicOn != "" && dest == f.panicOn {
		panic("send exploded")
	}
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{phone: phone, dest: dest, text: text})
	err := f.sendErr[dest]
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSender) sendCalls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}
