package provisioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"postbot/internal/accounts"
	"postbot/internal/conversation"
)

// ErrLoginPending means another login for the same phone is already
// waiting for its code.
var ErrLoginPending = errors.New("a login for this phone is already waiting for a code")

const defaultCodeTimeout = 5 * time.Minute

// CodeBroker hands verification codes typed into the bot chat to the
// network login that is blocked on them.
type CodeBroker struct {
	sessions *conversation.Sessions
	notify   Notifier
	timeout  time.Duration

	mu      sync.Mutex
	waiters map[string]*waiter
}

type waiter struct {
	userID int64
	ch     chan string
}

func NewCodeBroker(sessions *conversation.Sessions, notify Notifier, timeout time.Duration) *CodeBroker {
	if timeout <= 0 {
		timeout = defaultCodeTimeout
	}
	return &CodeBroker{
		sessions: sessions,
		notify:   notify,
		timeout:  timeout,
		waiters:  map[string]*waiter{},
	}
}

func (b *CodeBroker) Timeout() time.Duration { return b.timeout }

// Wait blocks until the code for phone is delivered, the timeout passes or
// ctx ends. It moves the user to the live code step and prompts them unless
// they are already there.
func (b *CodeBroker) Wait(ctx context.Context, userID int64, phone string) (string, error) {
	w := &waiter{userID: userID, ch: make(chan string, 1)}

	b.mu.Lock()
	if _, busy := b.waiters[phone]; busy {
		b.mu.Unlock()
		return "", ErrLoginPending
	}
	b.waiters[phone] = w
	b.mu.Unlock()
	defer b.drop(phone, w)

	want := conversation.AwaitingCode{Phone: phone, Live: true}
	if b.sessions != nil && b.sessions.Get(userID) != conversation.State(want) {
		b.sessions.Set(userID, want)
		if b.notify != nil {
			_ = b.notify.Notify(ctx, userID, conversation.TextCodeSent)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	select {
	case code := <-w.ch:
		return code, nil
	case <-ctx.Done():
		// leave the code step only if nothing else moved the user on
		if b.sessions != nil && b.sessions.Get(userID) == conversation.State(want) {
			b.sessions.Reset(userID)
		}
		return "", ctx.Err()
	}
}

// Deliver passes code to the login waiting on phone. It reports false
// when nobody waits.
func (b *CodeBroker) Deliver(phone, code string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.waiters[phone]
	if !ok {
		return false
	}
	delete(b.waiters, phone)
	w.ch <- code
	return true
}

// waiting reports whether a login for phone is blocked on its code.
func (b *CodeBroker) waiting(phone string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.waiters[phone]
	return ok
}

// CodeFunc binds the broker to userID for use by a login flow.
func (b *CodeBroker) CodeFunc(userID int64) accounts.CodeFunc {
	return func(ctx context.Context, phone string) (string, error) {
		return b.Wait(ctx, userID, phone)
	}
}

func (b *CodeBroker) drop(phone string, w *waiter) {
	b.mu.Lock()
	if b.waiters[phone] == w {
		delete(b.waiters, phone)
	}
	b.mu.Unlock()
}
