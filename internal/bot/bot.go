package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"postbot/internal/broadcast"
	"postbot/internal/conversation"
	"postbot/internal/eventbus"
	"postbot/internal/storage"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

// Callback prefixes.
const (
	prefixMenu = "menu"
	prefixDest = "dest"
	prefixAcct = "acct"
)

// Bot owns the handlers registered on the router.
type Bot struct {
	store    Store
	disp     Dispatcher
	exec     Executor
	sessions *conversation.Sessions
	notify   Notifier
	bus      eventbus.Bus
	log      logx.Logger
	opts     Options

	maxAccounts atomic.Int64
	cmds        []router.Command
}

func New(store Store, disp Dispatcher, exec Executor, sessions *conversation.Sessions, notify Notifier, bus eventbus.Bus, log logx.Logger, opts Options) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		store:    store,
		disp:     disp,
		exec:     exec,
		sessions: sessions,
		notify:   notify,
		bus:      bus,
		log:      log.With(logx.String("comp", "bot")),
		opts:     opts,
	}
	b.SetMaxAccounts(opts.MaxAccounts)
	return b
}

// SetMaxAccounts applies a reloaded limit.
func (b *Bot) SetMaxAccounts(n int) {
	if n <= 0 {
		n = 10
	}
	b.maxAccounts.Store(int64(n))
}

func (b *Bot) limit() int { return int(b.maxAccounts.Load()) }

// Install registers commands, callbacks and the text handler.
func (b *Bot) Install(r *router.Router) {
	b.cmds = []router.Command{
		{Name: "start", Description: "Open the main menu", Handle: b.guard(b.cmdStart)},
		{Name: "cancel", Description: "Cancel the current input or mailing", Handle: b.guard(b.cmdCancel)},
		{Name: "help", Description: "List commands", Handle: b.cmdHelp(r)},
		{Name: "stats", Description: "Bot statistics", Access: router.AccessOwnerOnly, Handle: b.guard(b.cmdStats)},
		{Name: "status", Description: "Runtime status", Access: router.AccessOwnerOnly, Handle: b.guard(b.cmdStatus)},
	}
	menu := func(action string, h router.HandlerFunc) router.CallbackRoute {
		return router.CallbackRoute{Prefix: prefixMenu, Action: action, Timeout: 15 * time.Second, Handle: b.guard(h)}
	}
	cbs := []router.CallbackRoute{
		menu("main", b.onMain),
		menu("accounts", b.onAccounts),
		menu("add_account", b.onAddAccount),
		menu("remove_acct", b.onRemoveAccountList),
		menu("phone", b.onPhone),
		menu("api", b.onAPI),
		menu("configure", b.onConfigure),
		menu("dests", b.onDestinations),
		menu("add_dest", b.onAddDestination),
		menu("remove_dest", b.onRemoveList),
		menu("message", b.onMessage),
		menu("start", b.onStartMailing),
		menu("stop", b.onStopMailing),
		menu("description", b.onDescription),
		menu("support", b.onSupport),
		{Prefix: prefixDest, Action: "off", Timeout: 15 * time.Second, Handle: b.guard(b.onRemoveDestination)},
		{Prefix: prefixAcct, Action: "off", Timeout: 15 * time.Second, Handle: b.guard(b.onRemoveAccount)},
	}
	r.SetRegistry(b.cmds, cbs, b.guard(b.onText))
}

// Run reports finished broadcasts to their owners until ctx ends.
func (b *Bot) Run(ctx context.Context) {
	if b.bus == nil {
		return
	}
	ch, unsub := b.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != eventbus.BroadcastFinished {
				continue
			}
			res, ok := ev.Data.(broadcast.Result)
			if !ok || res.Summary.UserID == 0 {
				continue
			}
			if err := b.notify.Notify(ctx, res.Summary.UserID, summaryText(res)); err != nil {
				b.log.Warn("summary not delivered", logx.Int64("user", res.Summary.UserID), logx.Err(err))
			}
		}
	}
}

// guard turns handler failures into an error audit and a short reply.
func (b *Bot) guard(h router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		err := h(ctx, req)
		if err == nil {
			return nil
		}
		actx := context.WithoutCancel(ctx)
		if aerr := b.store.AppendLog(actx, storage.LogEntry{UserID: req.FromID, Action: storage.ActionError, Details: err.Error()}); aerr != nil {
			req.Logger.Warn("error audit failed", logx.Err(aerr))
		}
		if !errors.Is(err, context.Canceled) {
			_, _ = req.Reply(actx, textError, nil)
		}
		return err
	}
}

// audit writes a best-effort action entry; a failed audit never blocks
// the menu.
func (b *Bot) audit(ctx context.Context, req *router.Request, action, details string) {
	if err := b.store.AppendLog(ctx, storage.LogEntry{UserID: req.FromID, Action: action, Details: details}); err != nil {
		req.Logger.Warn("audit failed", logx.String("action", action), logx.Err(err))
	}
}

// begin enters a conversation state from a menu button.
func (b *Bot) begin(ctx context.Context, req *router.Request, st conversation.State, effects []conversation.Effect) error {
	b.sessions.Set(req.FromID, st)
	return b.exec.Apply(ctx, req.FromID, effects)
}

// onText feeds free text into the conversation machine.
func (b *Bot) onText(ctx context.Context, req *router.Request) error {
	m := conversation.Machine{LiveCodes: b.exec.LiveCodes()}
	next, effects := m.Step(b.sessions.Get(req.FromID), req.Text)
	b.sessions.Set(req.FromID, next)
	return b.exec.Apply(ctx, req.FromID, effects)
}
