package provisioning

import (
	"context"
	"errors"
	"sync"

	"postbot/internal/accounts"
	"postbot/internal/storage"
)

type call struct {
	op    string
	arg   string
	notes []storage.Note
}

type recStore struct {
	mu     sync.Mutex
	calls  []call
	logs   []storage.LogEntry
	nextID int64
	tokens map[int64]string
}

func newRecStore() *recStore { return &recStore{tokens: map[int64]string{}} }

func (s *recStore) record(c call) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	s.nextID++
	return s.nextID
}

func (s *recStore) AddAccount(_ context.Context, a storage.NewAccount, notes ...storage.Note) (storage.Account, error) {
	id := s.record(call{op: "account", arg: a.Phone + "|" + a.SessionToken, notes: notes})
	return storage.Account{ID: id, UserID: a.UserID, Phone: a.Phone, APIID: a.APIID, APIHash: a.APIHash, SessionToken: a.SessionToken, Active: true}, nil
}

func (s *recStore) SetAccountToken(_ context.Context, accountID int64, token string, notes ...storage.Note) (bool, error) {
	s.record(call{op: "token", arg: token, notes: notes})
	s.mu.Lock()
	s.tokens[accountID] = token
	s.mu.Unlock()
	return true, nil
}

func (s *recStore) AddDestination(_ context.Context, _ int64, ident, _ string, notes ...storage.Note) (storage.Destination, error) {
	id := s.record(call{op: "destination", arg: ident, notes: notes})
	return storage.Destination{ID: id, Ident: ident}, nil
}

func (s *recStore) SaveMessage(_ context.Context, _ int64, body string, notes ...storage.Note) (storage.MessageDraft, error) {
	id := s.record(call{op: "message", arg: body, notes: notes})
	return storage.MessageDraft{ID: id, Body: body}, nil
}

func (s *recStore) AppendLog(_ context.Context, e storage.LogEntry) error {
	s.mu.Lock()
	s.logs = append(s.logs, e)
	s.mu.Unlock()
	return nil
}

func (s *recStore) snapshot() ([]call, []storage.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...), append([]storage.LogEntry(nil), s.logs...)
}

// fakeConnector asks for a code and accepts "12345".
type fakeConnector struct {
	defaultAPI bool
	dialErr    error
}

func (c *fakeConnector) HasDefaultAPI() bool { return c.defaultAPI }

func (c *fakeConnector) Credentials(phone, apiID, apiHash string) (accounts.Credentials, error) {
	if apiID == "" && !c.defaultAPI {
		return accounts.Credentials{}, &accounts.ConnectionError{Phone: phone, Err: accounts.ErrNoAPICredentials}
	}
	return accounts.Credentials{APIID: 1, APIHash: "hash", Phone: phone}, nil
}

func (c *fakeConnector) Connect(ctx context.Context, creds accounts.Credentials, _ string, codes accounts.CodeFunc) (string, error) {
	if c.dialErr != nil {
		return "", &accounts.ConnectionError{Phone: creds.Phone, Err: c.dialErr}
	}
	code, err := codes(ctx, creds.Phone)
	if err != nil {
		return "", &accounts.ConnectionError{Phone: creds.Phone, Err: err}
	}
	if code != "12345" {
		return "", &accounts.ConnectionError{Phone: creds.Phone, Err: errors.New("PHONE_CODE_INVALID")}
	}
	return "token-" + creds.Phone, nil
}

type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (b *inbox) Notify(_ context.Context, _ int64, text string) error {
	b.mu.Lock()
	b.msgs = append(b.msgs, text)
	b.mu.Unlock()
	return nil
}

func (b *inbox) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.msgs...)
}

func (b *inbox) has(text string) bool {
	for _, m := range b.all() {
		if m == text {
			return true
		}
	}
	return false
}
