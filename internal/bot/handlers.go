package bot

import (
	"context"
	"strconv"

	"postbot/internal/conversation"
	"postbot/internal/storage"
	"postbot/internal/transport/telegram/router"
	"postbot/pkg/tgui"
)

// Commands.

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	if err := b.store.EnsureUser(ctx, req.FromID); err != nil {
		return err
	}
	b.sessions.Reset(req.FromID)
	b.audit(ctx, req, storage.ActionStartCommand, "")
	return show(ctx, req, mainMenu())
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	b.sessions.Reset(req.FromID)
	text := conversation.TextCancelled
	if b.disp.Cancel(req.FromID) {
		text = textStopping
	}
	_, err := req.Reply(ctx, text, nil)
	return err
}

func (b *Bot) cmdHelp(r *router.Router) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		_, err := req.Reply(ctx, router.HelpText(r.Commands(), r.IsOwner(req.FromID)), nil)
		return err
	}
}

func (b *Bot) cmdStats(ctx context.Context, req *router.Request) error {
	b.audit(ctx, req, storage.ActionViewStats, "")
	st, err := b.store.Stats(ctx)
	if err != nil {
		return err
	}
	m := tgui.New().Title("📊 Bot statistics").Blank().
		KV("👥 Users", strconv.FormatInt(st.Users, 10)).
		KV("📨 Active mailings", strconv.FormatInt(st.UsersWithDraft, 10)).
		KV("📱 Connected accounts", strconv.FormatInt(st.ActiveAccounts, 10)).
		KV("🗂 Target groups", strconv.FormatInt(st.ActiveDestinations, 10)).
		Build()
	return show(ctx, req, m)
}

func (b *Bot) cmdStatus(ctx context.Context, req *router.Request) error {
	bld := tgui.New().Title("Status")
	if b.opts.Status != nil {
		for _, it := range b.opts.Status() {
			bld.KV(it.Name, it.Value)
		}
	}
	if _, running := b.disp.Active(req.FromID); running {
		bld.KV("your mailing", "running")
	}
	return show(ctx, req, bld.Build())
}

// Menu callbacks.

func (b *Bot) onMain(ctx context.Context, req *router.Request) error {
	return show(ctx, req, mainMenu())
}

func (b *Bot) onAccounts(ctx context.Context, req *router.Request) error {
	b.audit(ctx, req, storage.ActionConnectAccountMenu, "")
	accs, err := b.store.ListActiveAccounts(ctx, req.FromID)
	if err != nil {
		return err
	}
	return show(ctx, req, accountsMenu(accs, b.limit()))
}

func (b *Bot) onAddAccount(ctx context.Context, req *router.Request) error {
	n, err := b.store.CountActiveAccounts(ctx, req.FromID)
	if err != nil {
		return err
	}
	if n >= b.limit() {
		return show(ctx, req, textScreen("The account limit is reached.", "accounts"))
	}
	b.audit(ctx, req, storage.ActionAddAccountMenu, "")
	return show(ctx, req, addAccountMenu())
}

func (b *Bot) onRemoveAccountList(ctx context.Context, req *router.Request) error {
	accs, err := b.store.ListActiveAccounts(ctx, req.FromID)
	if err != nil {
		return err
	}
	return show(ctx, req, removeAccountMenu(accs))
}

// onRemoveAccount deactivates the account and drops its cached connection
// so a later re-add starts from a fresh session.
func (b *Bot) onRemoveAccount(ctx context.Context, req *router.Request) error {
	id, ok := tgui.PayloadID(req.Payload)
	if !ok {
		return nil
	}
	if _, running := b.disp.Active(req.FromID); running {
		return show(ctx, req, textScreen(textAcctBusy, "accounts"))
	}
	accs, err := b.store.ListActiveAccounts(ctx, req.FromID)
	if err != nil {
		return err
	}
	phone := ""
	for _, a := range accs {
		if a.ID == id {
			phone = a.Phone
			break
		}
	}
	if phone == "" {
		return show(ctx, req, removeAccountMenu(accs))
	}
	removed, err := b.store.DeactivateAccount(ctx, req.FromID, id,
		storage.Note{Action: storage.ActionAccountRemoved, Details: "account: " + phone})
	if err != nil {
		return err
	}
	if removed {
		if b.opts.Evict != nil {
			b.opts.Evict(phone)
		}
		_, _ = req.Reply(ctx, textAcctRemoved, nil)
	}
	rest, err := b.store.ListActiveAccounts(ctx, req.FromID)
	if err != nil {
		return err
	}
	return show(ctx, req, removeAccountMenu(rest))
}

func (b *Bot) onPhone(ctx context.Context, req *router.Request) error {
	st, effects := conversation.Machine{}.BeginPhone()
	return b.begin(ctx, req, st, effects)
}

func (b *Bot) onAPI(ctx context.Context, req *router.Request) error {
	st, effects := conversation.Machine{}.BeginAPITriple()
	return b.begin(ctx, req, st, effects)
}

func (b *Bot) onConfigure(ctx context.Context, req *router.Request) error {
	b.audit(ctx, req, storage.ActionConfigureBotMenu, "")
	_, running := b.disp.Active(req.FromID)
	return show(ctx, req, configureMenu(running))
}

func (b *Bot) onDestinations(ctx context.Context, req *router.Request) error {
	b.audit(ctx, req, storage.ActionGroupMessagingMenu, "")
	dests, err := b.store.ListActiveDestinations(ctx, req.FromID)
	if err != nil {
		return err
	}
	return show(ctx, req, destinationsMenu(dests))
}

func (b *Bot) onAddDestination(ctx context.Context, req *router.Request) error {
	st, effects := conversation.Machine{}.BeginDestination()
	return b.begin(ctx, req, st, effects)
}

func (b *Bot) onRemoveList(ctx context.Context, req *router.Request) error {
	dests, err := b.store.ListActiveDestinations(ctx, req.FromID)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.Payload)
	return show(ctx, req, removeMenu(dests, page))
}

func (b *Bot) onRemoveDestination(ctx context.Context, req *router.Request) error {
	id, ok := tgui.PayloadID(req.Payload)
	if !ok {
		return nil
	}
	dests, err := b.store.ListActiveDestinations(ctx, req.FromID)
	if err != nil {
		return err
	}
	ident := ""
	for _, d := range dests {
		if d.ID == id {
			ident = d.Ident
			break
		}
	}
	if ident == "" {
		// already removed or not this user's
		return show(ctx, req, removeMenu(dests, 0))
	}
	removed, err := b.store.DeactivateDestination(ctx, req.FromID, id,
		storage.Note{Action: storage.ActionGroupRemoved, Details: "group: " + ident})
	if err != nil {
		return err
	}
	if removed {
		_, _ = req.Reply(ctx, textGroupRemoved, nil)
	}
	rest, err := b.store.ListActiveDestinations(ctx, req.FromID)
	if err != nil {
		return err
	}
	return show(ctx, req, removeMenu(rest, 0))
}

func (b *Bot) onMessage(ctx context.Context, req *router.Request) error {
	cur, _, err := b.store.CurrentMessage(ctx, req.FromID)
	if err != nil {
		return err
	}
	st, effects := conversation.Machine{}.BeginMessageBody(cur.Body)
	return b.begin(ctx, req, st, effects)
}

func (b *Bot) onStartMailing(ctx context.Context, req *router.Request) error {
	b.audit(ctx, req, storage.ActionStartMailingAttempt, "")
	_, err := b.disp.Start(ctx, req.FromID)
	if err != nil {
		if text, ok := preconditionText(err); ok {
			return show(ctx, req, textScreen(text, "configure"))
		}
		return err
	}
	return show(ctx, req, textScreen(textStarting, "configure"))
}

func (b *Bot) onStopMailing(ctx context.Context, req *router.Request) error {
	text := textNotRunning
	if b.disp.Cancel(req.FromID) {
		text = textStopping
	}
	return show(ctx, req, textScreen(text, "configure"))
}

func (b *Bot) onDescription(ctx context.Context, req *router.Request) error {
	return show(ctx, req, textScreen(textDescription, "main"))
}

func (b *Bot) onSupport(ctx context.Context, req *router.Request) error {
	return show(ctx, req, supportScreen(b.opts.SupportURL))
}
