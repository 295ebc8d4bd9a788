package accounts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
	sent   []string
	fail   map[string]error
}

func (c *fakeConn) Send(ctx context.Context, dest, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[dest]; err != nil {
		return err
	}
	c.sent = append(c.sent, dest+"|"+text)
	return ctx.Err()
}

func (c *fakeConn) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type fakeDialer struct {
	dials atomic.Int32
	err   error
	// valid tokens restore without codes
	valid map[string]bool
}

func (d *fakeDialer) Dial(ctx context.Context, creds Credentials, token string, codes CodeFunc) (Conn, string, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, "", d.err
	}
	if token != "" && d.valid[token] {
		return &fakeConn{}, token, nil
	}
	if codes == nil {
		return nil, "", ErrUnauthorized
	}
	code, err := codes(ctx, creds.Phone)
	if err != nil {
		return nil, "", err
	}
	if code != "12345" {
		return nil, "", errors.New("PHONE_CODE_INVALID")
	}
	return &fakeConn{}, "token-" + creds.Phone, nil
}
