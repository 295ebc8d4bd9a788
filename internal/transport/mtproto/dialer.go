package mtproto

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"

	"postbot/internal/accounts"
	logx "postbot/pkg/logx"
)

var errClientStopped = errors.New("mtproto client stopped")

// Dialer starts one gotd client per connection.
type Dialer struct {
	log logx.Logger
	// DialogPages caps the dialog scan used to resolve numeric ids.
	DialogPages int
}

var _ accounts.Dialer = (*Dialer)(nil)

func NewDialer(log logx.Logger) *Dialer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dialer{log: log.With(logx.String("comp", "mtproto")), DialogPages: 10}
}

// Dial runs a client in the background until the returned Conn is closed.
// It returns once the client is authorized or failed.
func (d *Dialer) Dial(ctx context.Context, creds accounts.Credentials, token string, codes accounts.CodeFunc) (accounts.Conn, string, error) {
	store, err := newMemorySession(token)
	if err != nil {
		return nil, "", err
	}
	client := telegram.NewClient(creds.APIID, creds.APIHash, telegram.Options{
		SessionStorage: store,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c := &conn{
		phone:       creds.Phone,
		cancel:      cancel,
		done:        make(chan struct{}),
		peers:       map[target]tg.InputPeerClass{},
		dialogPages: d.DialogPages,
		log:         d.log.With(logx.String("phone", creds.Phone)),
	}
	ready := make(chan error, 1)
	loggedIn := false

	go func() {
		defer close(c.done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			fresh, err := authorize(ctx, client, creds.Phone, codes)
			if err != nil {
				return err
			}
			loggedIn = fresh
			c.api = client.API()
			c.sender = message.NewSender(c.api)
			c.authorized.Store(true)
			ready <- nil
			<-ctx.Done()
			return ctx.Err()
		})
		c.authorized.Store(false)
		if err == nil {
			err = errClientStopped
		}
		select {
		case ready <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-c.done
			return nil, "", err
		}
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, "", ctx.Err()
	}

	if !loggedIn && token != "" {
		return c, token, nil
	}
	return c, store.Token(), nil
}

// authorize reports true when an interactive login happened.
func authorize(ctx context.Context, client *telegram.Client, phone string, codes accounts.CodeFunc) (bool, error) {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return false, err
	}
	if status.Authorized {
		return false, nil
	}
	if codes == nil {
		return false, accounts.ErrUnauthorized
	}
	flow := auth.NewFlow(
		auth.CodeOnly(phone, auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
			return codes(ctx, phone)
		})),
		auth.SendCodeOptions{},
	)
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return false, err
	}
	return true, nil
}

type conn struct {
	phone  string
	cancel context.CancelFunc
	done   chan struct{}
	log    logx.Logger

	api        *tg.Client
	sender     *message.Sender
	authorized atomic.Bool

	mu          sync.Mutex
	peers       map[target]tg.InputPeerClass
	dialogPages int
}

func (c *conn) Authorized() bool { return c.authorized.Load() }

func (c *conn) Close() error {
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		c.log.Warn("client did not stop in time")
	}
	return nil
}

func (c *conn) Send(ctx context.Context, destination, text string) error {
	if !c.Authorized() {
		return accounts.ErrUnauthorized
	}
	t, ok := parseTarget(destination)
	if !ok {
		return &UnknownDestinationError{Destination: destination}
	}
	if t.kind == peerUsername {
		_, err := c.sender.Resolve("@" + t.username).Text(ctx, text)
		return err
	}
	p, err := c.resolveNumeric(ctx, t)
	if err != nil {
		return err
	}
	_, err = c.sender.To(p).Text(ctx, text)
	return err
}

// UnknownDestinationError means a destination could not be parsed or
// resolved to a peer.
type UnknownDestinationError struct{ Destination string }

func (e *UnknownDestinationError) Error() string {
	return "unknown destination " + e.Destination
}
