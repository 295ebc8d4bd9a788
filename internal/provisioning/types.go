// Package provisioning applies the effects produced by the conversation
// machine: store writes, replies and account logins.
package provisioning

import (
	"context"

	"postbot/internal/accounts"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
)

// Store is the subset of storage.Store provisioning writes to.
type Store interface {
	AddAccount(ctx context.Context, a storage.NewAccount, notes ...storage.Note) (storage.Account, error)
	SetAccountToken(ctx context.Context, accountID int64, token string, notes ...storage.Note) (bool, error)
	AddDestination(ctx context.Context, userID int64, ident, title string, notes ...storage.Note) (storage.Destination, error)
	SaveMessage(ctx context.Context, userID int64, body string, notes ...storage.Note) (storage.MessageDraft, error)
	AppendLog(ctx context.Context, e storage.LogEntry) error
}

// Connector logs accounts in; *accounts.Manager implements it.
type Connector interface {
	HasDefaultAPI() bool
	Credentials(phone, apiID, apiHash string) (accounts.Credentials, error)
	Connect(ctx context.Context, creds accounts.Credentials, priorToken string, codes accounts.CodeFunc) (string, error)
}

type Engine interface {
	Submit(ctx context.Context, t engine.Task) (*engine.Handle, error)
}

// Notifier sends a bot message to the user's private chat.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

type NotifyFunc func(ctx context.Context, userID int64, text string) error

func (f NotifyFunc) Notify(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}

// Login results reported to the user after a background connect.
const (
	TextLoginPending   = "A login for this number is already in progress."
	TextNoLoginWaiting = "No login is waiting for a code right now. Start again from the menu."
)

func textConnectFailed(err error) string {
	return "Could not connect the account: " + err.Error()
}
