package storage

import (
	"context"
	"errors"
	"strings"

	logx "postbot/pkg/logx"
)

// Store is the persistence API used by the bot, provisioning and broadcast.
type Store interface {
	EnsureUser(ctx context.Context, userID int64) error

	AddAccount(ctx context.Context, a NewAccount, notes ...Note) (Account, error)
	ListActiveAccounts(ctx context.Context, userID int64) ([]Account, error)
	CountActiveAccounts(ctx context.Context, userID int64) (int, error)
	// SetAccountToken writes the token only when none is stored yet.
	SetAccountToken(ctx context.Context, accountID int64, token string, notes ...Note) (bool, error)
	DeactivateAccount(ctx context.Context, userID, accountID int64, notes ...Note) (bool, error)

	AddDestination(ctx context.Context, userID int64, ident, title string, notes ...Note) (Destination, error)
	ListActiveDestinations(ctx context.Context, userID int64) ([]Destination, error)
	DeactivateDestination(ctx context.Context, userID, id int64, notes ...Note) (bool, error)

	SaveMessage(ctx context.Context, userID int64, body string, notes ...Note) (MessageDraft, error)
	CurrentMessage(ctx context.Context, userID int64) (MessageDraft, bool, error)

	AppendLog(ctx context.Context, e LogEntry) error
	ListLogs(ctx context.Context, f LogFilter) ([]LogEntry, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open initializes the configured store and applies the schema.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Migrate opens the store, which applies the schema, and closes it again.
func Migrate(cfg Config, log logx.Logger) error {
	st, err := Open(cfg, log)
	if err != nil {
		return err
	}
	return st.Close()
}
