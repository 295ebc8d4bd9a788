package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	logx "postbot/pkg/logx"
)

// Options configure a Manager.
type Options struct {
	// DefaultAPIID/DefaultAPIHash are used for accounts without their own pair.
	DefaultAPIID   int
	DefaultAPIHash string
	SendTimeout    time.Duration
	DialTimeout    time.Duration
}

// Manager connects accounts and sends messages through them.
type Manager struct {
	dialer   Dialer
	registry *Registry
	log      logx.Logger

	defaultID   int
	defaultHash string
	dialTimeout time.Duration
	sendTimeout atomic.Int64
}

func NewManager(d Dialer, opts Options, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		dialer:      d,
		registry:    NewRegistry(),
		log:         log.With(logx.String("comp", "accounts")),
		defaultID:   opts.DefaultAPIID,
		defaultHash: opts.DefaultAPIHash,
		dialTimeout: opts.DialTimeout,
	}
	if m.dialTimeout <= 0 {
		m.dialTimeout = 30 * time.Second
	}
	m.SetSendTimeout(opts.SendTimeout)
	return m
}

func (m *Manager) Registry() *Registry { return m.registry }

// HasDefaultAPI reports whether a fallback API pair is configured.
func (m *Manager) HasDefaultAPI() bool { return m.defaultID != 0 && m.defaultHash != "" }

// SetSendTimeout changes the per-send timeout. Safe at runtime.
func (m *Manager) SetSendTimeout(d time.Duration) {
	if d <= 0 {
		d = 30 * time.Second
	}
	m.sendTimeout.Store(int64(d))
}

func (m *Manager) SendTimeout() time.Duration { return time.Duration(m.sendTimeout.Load()) }

// Credentials builds credentials for phone, falling back to the default
// API pair when the account has none.
func (m *Manager) Credentials(phone, apiID, apiHash string) (Credentials, error) {
	apiID, apiHash = strings.TrimSpace(apiID), strings.TrimSpace(apiHash)
	if apiID != "" && apiHash != "" {
		id, err := strconv.Atoi(apiID)
		if err != nil {
			return Credentials{}, &ConnectionError{Phone: phone, Err: fmt.Errorf("api id %q: %w", apiID, err)}
		}
		return Credentials{APIID: id, APIHash: apiHash, Phone: phone}, nil
	}
	if !m.HasDefaultAPI() {
		return Credentials{}, &ConnectionError{Phone: phone, Err: ErrNoAPICredentials}
	}
	return Credentials{APIID: m.defaultID, APIHash: m.defaultHash, Phone: phone}, nil
}

// Connect establishes a session for creds. A prior token that is still
// authorized is returned unchanged; otherwise an interactive login runs
// with codes. The live connection is cached in the registry.
func (m *Manager) Connect(ctx context.Context, creds Credentials, priorToken string, codes CodeFunc) (string, error) {
	start := time.Now()
	conn, token, err := m.dialer.Dial(ctx, creds, priorToken, codes)
	if err != nil {
		m.log.Warn("connect failed", logx.String("phone", creds.Phone), logx.Err(err))
		return "", asConnectionError(creds.Phone, err)
	}
	if err := m.registry.Put(ctx, creds.Phone, conn); err != nil {
		_ = conn.Close()
		return "", asConnectionError(creds.Phone, err)
	}
	m.log.Info("account connected",
		logx.String("phone", creds.Phone),
		logx.Bool("reused", priorToken != "" && token == priorToken),
		logx.Duration("took", time.Since(start)),
	)
	return token, nil
}

// Acquire returns a connection for a stored session without interactive
// login. Callers must Release the phone afterwards.
func (m *Manager) Acquire(ctx context.Context, creds Credentials, token string) (Conn, error) {
	if token == "" {
		return nil, &ConnectionError{Phone: creds.Phone, Err: ErrUnauthorized}
	}
	conn, err := m.registry.Acquire(ctx, creds.Phone, func(ctx context.Context) (Conn, error) {
		dctx, cancel := context.WithTimeout(ctx, m.dialTimeout)
		defer cancel()
		c, _, err := m.dialer.Dial(dctx, creds, token, nil)
		return c, err
	})
	if err != nil {
		return nil, asConnectionError(creds.Phone, err)
	}
	return conn, nil
}

// Release unlocks phone; closeConn also drops the cached connection.
func (m *Manager) Release(phone string, closeConn bool) {
	m.registry.Release(phone, closeConn)
}

// SendOne sends text to destination with the per-send timeout.
func (m *Manager) SendOne(ctx context.Context, conn Conn, destination, text string) error {
	ctx, cancel := context.WithTimeout(ctx, m.SendTimeout())
	defer cancel()
	return conn.Send(ctx, destination, text)
}

// Close drops every cached connection.
func (m *Manager) Close() {
	m.registry.CloseAll()
}

func asConnectionError(phone string, err error) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Phone: phone, Err: err}
}
