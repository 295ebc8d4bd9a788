package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"postbot/internal/accounts"
	"postbot/internal/conversation"
	"postbot/internal/eventbus"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

// Executor applies conversation effects for one user at a time.
type Executor struct {
	store  Store
	conn   Connector
	engine Engine
	broker *CodeBroker
	notify Notifier
	bus    eventbus.Bus
	log    logx.Logger

	// verifyCode makes RequestCode start a real login with the default
	// API pair
	verifyCode atomic.Bool
	// LoginTimeout bounds one background login, code wait included.
	LoginTimeout time.Duration
}

func NewExecutor(store Store, conn Connector, eng Engine, broker *CodeBroker, notify Notifier, bus eventbus.Bus, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		store:  store,
		conn:   conn,
		engine: eng,
		broker: broker,
		notify: notify,
		bus:    bus,
		log:    log.With(logx.String("comp", "provisioning")),
	}
}

// SetVerifyCode switches between live logins and demo codes for
// conversations started afterwards.
func (x *Executor) SetVerifyCode(on bool) { x.verifyCode.Store(on) }

// LiveCodes reports whether typed codes go to a running login.
func (x *Executor) LiveCodes() bool {
	return x.verifyCode.Load() && x.conn != nil && x.conn.HasDefaultAPI()
}

// Apply runs effects in order. Audit entries ride along in the
// transaction of the first persisting effect; without one they are
// appended on their own. The first store error stops the batch.
func (x *Executor) Apply(ctx context.Context, userID int64, effects []conversation.Effect) error {
	var notes []storage.Note
	persisting := false
	for _, e := range effects {
		if a, ok := e.(conversation.Audit); ok {
			notes = append(notes, storage.Note{Action: a.Action, Details: a.Details})
		}
		if conversation.Persists(e) {
			persisting = true
		}
	}
	if !persisting {
		for _, n := range notes {
			if err := x.store.AppendLog(ctx, storage.LogEntry{UserID: userID, Action: n.Action, Details: n.Details}); err != nil {
				return err
			}
		}
		notes = nil
	}

	for _, e := range effects {
		var err error
		switch e := e.(type) {
		case conversation.Reply:
			x.reply(ctx, userID, e.Text)
		case conversation.Audit:
			// folded above
		case conversation.CreateAccount:
			err = x.createAccount(ctx, userID, e, notes)
			notes = nil
		case conversation.CreateDestination:
			_, err = x.store.AddDestination(ctx, userID, e.Ident, "", notes...)
			notes = nil
		case conversation.SaveMessage:
			_, err = x.store.SaveMessage(ctx, userID, e.Body, notes...)
			notes = nil
		case conversation.RequestCode:
			err = x.requestCode(ctx, userID, e.Phone)
		case conversation.DeliverCode:
			if !x.broker.Deliver(e.Phone, e.Code) {
				x.log.Warn("code without waiting login", logx.Int64("user", userID), logx.String("phone", e.Phone))
				x.reply(ctx, userID, TextNoLoginWaiting)
				return nil
			}
		default:
			err = fmt.Errorf("unknown effect %T", e)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) createAccount(ctx context.Context, userID int64, e conversation.CreateAccount, notes []storage.Note) error {
	acc, err := x.store.AddAccount(ctx, storage.NewAccount{
		UserID:  userID,
		Phone:   e.Phone,
		APIID:   e.APIID,
		APIHash: e.APIHash,
	}, notes...)
	if err != nil {
		return err
	}
	x.log.Info("account added", logx.Int64("user", userID), logx.String("phone", acc.Phone), logx.Int64("id", acc.ID))
	if !e.Connect {
		return nil
	}
	creds, err := x.conn.Credentials(acc.Phone, acc.APIID, acc.APIHash)
	if err != nil {
		x.connectFailed(ctx, userID, acc.Phone, err)
		return nil
	}
	return x.submitLogin(ctx, userID, acc.Phone, func(ctx context.Context) error {
		token, err := x.conn.Connect(ctx, creds, "", x.broker.CodeFunc(userID))
		if err != nil {
			return err
		}
		_, err = x.store.SetAccountToken(ctx, acc.ID, token, storage.Note{Action: storage.ActionAccountConnected, Details: "account: " + acc.Phone})
		return err
	})
}

// requestCode starts a live login with the default API pair. Without
// one, the code step records a token-less account instead.
func (x *Executor) requestCode(ctx context.Context, userID int64, phone string) error {
	if !x.LiveCodes() {
		return nil
	}
	creds, err := x.conn.Credentials(phone, "", "")
	if err != nil {
		x.connectFailed(ctx, userID, phone, err)
		return nil
	}
	return x.submitLogin(ctx, userID, phone, func(ctx context.Context) error {
		token, err := x.conn.Connect(ctx, creds, "", x.broker.CodeFunc(userID))
		if err != nil {
			return err
		}
		_, err = x.store.AddAccount(ctx, storage.NewAccount{UserID: userID, Phone: phone, SessionToken: token},
			storage.Note{Action: storage.ActionAccountConnected, Details: "account: " + phone})
		return err
	})
}

// submitLogin runs login in the background; one login per phone at a time.
func (x *Executor) submitLogin(ctx context.Context, userID int64, phone string, login func(ctx context.Context) error) error {
	timeout := x.LoginTimeout
	if timeout <= 0 {
		timeout = x.broker.Timeout() + time.Minute
	}
	_, err := x.engine.Submit(ctx, engine.Task{
		Name:    "login",
		Key:     "login:" + phone,
		Overlap: engine.OverlapSkipIfRunning,
		Timeout: timeout,
		Run: func(ctx context.Context) error {
			// results outlive the task deadline
			outCtx := context.WithoutCancel(ctx)
			if err := login(ctx); err != nil {
				x.connectFailed(outCtx, userID, phone, err)
				return err
			}
			x.log.Info("account connected", logx.Int64("user", userID), logx.String("phone", phone))
			x.publish(eventbus.AccountConnected, userID, phone, nil)
			x.reply(outCtx, userID, conversation.TextAccountAdded)
			return nil
		},
	})
	if errors.Is(err, engine.ErrOverlapSkip) {
		x.reply(ctx, userID, TextLoginPending)
		return nil
	}
	if err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	return nil
}

func (x *Executor) connectFailed(ctx context.Context, userID int64, phone string, err error) {
	var ce *accounts.ConnectionError
	if errors.As(err, &ce) {
		err = ce.Err
	}
	x.log.Warn("account connect failed", logx.Int64("user", userID), logx.String("phone", phone), logx.Err(err))
	if aerr := x.store.AppendLog(ctx, storage.LogEntry{
		UserID:  userID,
		Action:  storage.ActionAccountError,
		Details: fmt.Sprintf("account: %s, error: %v", phone, err),
	}); aerr != nil {
		x.log.Error("audit write failed", logx.String("action", storage.ActionAccountError), logx.Err(aerr))
	}
	x.publish(eventbus.AccountFailed, userID, phone, err)
	x.reply(ctx, userID, textConnectFailed(err))
}

// AccountEvent is the payload of the account.* bus events.
type AccountEvent struct {
	UserID int64
	Phone  string
	Err    error
}

func (x *Executor) publish(typ string, userID int64, phone string, err error) {
	if x.bus == nil {
		return
	}
	x.bus.Publish(eventbus.Event{Type: typ, Data: AccountEvent{UserID: userID, Phone: phone, Err: err}})
}

func (x *Executor) reply(ctx context.Context, userID int64, text string) {
	if x.notify == nil || text == "" {
		return
	}
	if err := x.notify.Notify(ctx, userID, text); err != nil {
		x.log.Warn("reply failed", logx.Int64("user", userID), logx.Err(err))
	}
}
