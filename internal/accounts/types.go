// Package accounts manages logins and live connections of attached user
// accounts. The network client itself sits behind Dialer.
package accounts

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoAPICredentials means neither the account nor the config has an API pair.
	ErrNoAPICredentials = errors.New("no api credentials")
	// ErrUnauthorized means the stored session is no longer valid and no
	// interactive login was possible.
	ErrUnauthorized = errors.New("session not authorized")
)

// Credentials identify one account on the network.
type Credentials struct {
	APIID   int
	APIHash string
	Phone   string
}

// CodeFunc returns the login code for phone. It blocks until the user
// types it or ctx ends.
type CodeFunc func(ctx context.Context, phone string) (string, error)

// Conn is a live, authorized account connection.
type Conn interface {
	Send(ctx context.Context, destination, text string) error
	Authorized() bool
	Close() error
}

// Dialer opens connections. A non-empty token restores a session; when it
// is not authorized and codes is nil, Dial fails with ErrUnauthorized.
// The returned token equals the input token when the session was reused.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials, token string, codes CodeFunc) (Conn, string, error)
}

// ConnectionError wraps any failure to establish an account connection.
type ConnectionError struct {
	Phone string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("account %s: %v", e.Phone, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
