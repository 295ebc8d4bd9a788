// Package bot implements the chat front-end: menus, commands and the glue
// between typed input and the conversation machine.
package bot

import (
	"context"

	"postbot/internal/broadcast"
	"postbot/internal/conversation"
	"postbot/internal/storage"
)

// Store is the part of the record store menus read and write.
type Store interface {
	EnsureUser(ctx context.Context, userID int64) error
	ListActiveAccounts(ctx context.Context, userID int64) ([]storage.Account, error)
	CountActiveAccounts(ctx context.Context, userID int64) (int, error)
	DeactivateAccount(ctx context.Context, userID, accountID int64, notes ...storage.Note) (bool, error)
	ListActiveDestinations(ctx context.Context, userID int64) ([]storage.Destination, error)
	DeactivateDestination(ctx context.Context, userID, id int64, notes ...storage.Note) (bool, error)
	CurrentMessage(ctx context.Context, userID int64) (storage.MessageDraft, bool, error)
	AppendLog(ctx context.Context, e storage.LogEntry) error
	Stats(ctx context.Context) (storage.Stats, error)
}

// Dispatcher is implemented by *broadcast.Dispatcher.
type Dispatcher interface {
	Start(ctx context.Context, userID int64) (*broadcast.Run, error)
	Cancel(userID int64) bool
	Active(userID int64) (*broadcast.Run, bool)
}

// Executor is implemented by *provisioning.Executor.
type Executor interface {
	LiveCodes() bool
	Apply(ctx context.Context, userID int64, effects []conversation.Effect) error
}

// Notifier delivers a plain message to the user's private chat.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// StatusItem is one line of /status.
type StatusItem struct {
	Name  string
	Value string
}

type StatusFunc func() []StatusItem

type Options struct {
	// MaxAccounts hides "add account" once reached.
	MaxAccounts int
	// SupportURL is linked from the support screen when set.
	SupportURL string
	Status     StatusFunc
	// Evict drops a removed account's cached connection.
	Evict func(phone string) bool
}
