// Package broadcast posts the current message draft from every attached
// account to every destination of a user, as one background run.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"postbot/internal/accounts"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
)

var (
	ErrNoAccounts     = errors.New("no connected accounts")
	ErrNoDestinations = errors.New("no destinations")
	ErrNoMessage      = errors.New("no message set")

	// ErrAlreadyRunning is returned while a run for the same user is in flight.
	ErrAlreadyRunning = errors.New("broadcast already running")
)

// PreconditionError explains why a run cannot start.
type PreconditionError struct {
	Reason error
}

func (e *PreconditionError) Error() string { return "broadcast precondition: " + e.Reason.Error() }
func (e *PreconditionError) Unwrap() error { return e.Reason }

// Store is the part of the record store a run reads and writes.
type Store interface {
	ListActiveAccounts(ctx context.Context, userID int64) ([]storage.Account, error)
	ListActiveDestinations(ctx context.Context, userID int64) ([]storage.Destination, error)
	CurrentMessage(ctx context.Context, userID int64) (storage.MessageDraft, bool, error)
	AppendLog(ctx context.Context, e storage.LogEntry) error
}

// Sender is implemented by *accounts.Manager.
type Sender interface {
	Credentials(phone, apiID, apiHash string) (accounts.Credentials, error)
	Acquire(ctx context.Context, creds accounts.Credentials, token string) (accounts.Conn, error)
	Release(phone string, closeConn bool)
	SendOne(ctx context.Context, conn accounts.Conn, destination, text string) error
}

// Engine is implemented by *engine.Service.
type Engine interface {
	Submit(ctx context.Context, t engine.Task) (*engine.Handle, error)
}

// Summary is the outcome of one run.
type Summary struct {
	RunID         string
	UserID        int64
	Accounts      int // accounts that connected
	Skipped       int // accounts without a session token
	AccountErrors int
	Sent          int
	Failed        int
	Cancelled     bool
	Duration      time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("accounts: %d, skipped: %d, account_errors: %d, sent: %d, failed: %d",
		s.Accounts, s.Skipped, s.AccountErrors, s.Sent, s.Failed)
}

// Run is a started broadcast.
type Run struct {
	ID      string
	UserID  int64
	Started time.Time

	handle  *engine.Handle
	summary Summary
	began   atomic.Bool
}

// Done is closed when the run ends.
func (r *Run) Done() <-chan struct{} { return r.handle.Done() }

// Wait blocks until the run ends and returns its summary. The error is
// non-nil when the run aborted (mailing_error) or was cancelled.
func (r *Run) Wait(ctx context.Context) (Summary, error) {
	if err := r.handle.Wait(ctx); err != nil {
		if errors.Is(err, ctx.Err()) {
			return Summary{}, err
		}
		return r.summary, err
	}
	return r.summary, nil
}

func (r *Run) Cancel() { r.handle.Cancel() }
