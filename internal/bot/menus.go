package bot

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/storage"
	"postbot/internal/transport/telegram/router"
	"postbot/pkg/tgui"
)

const destPageSize = 8

func btnBack(to string) tele.Btn { return tgui.Btn("Back", tgui.Data(prefixMenu, to, "")) }

func mainMenu() tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("Connect account", tgui.Data(prefixMenu, "accounts", ""))).
		Row(tgui.Btn("Configure bot", tgui.Data(prefixMenu, "configure", ""))).
		Row(tgui.Btn("Description", tgui.Data(prefixMenu, "description", ""))).
		Row(tgui.Btn("Support", tgui.Data(prefixMenu, "support", "")))
	return tgui.New().Title(textMainTitle).Line(textMainHint).Inline(kb).Build()
}

func accountsMenu(accs []storage.Account, limit int) tgui.Message {
	b := tgui.New().Title(textAccounts).Blank().Line("Connected accounts:")
	if len(accs) == 0 {
		b.Line(textNoAccounts)
	}
	for _, a := range accs {
		mark := "✅"
		if !a.HasToken() {
			mark = "⏳"
		}
		b.RawLine(tgui.JoinH(" ", tgui.Esc(mark), tgui.Code(a.Phone)))
	}
	kb := tgui.NewInline()
	if len(accs) < limit {
		kb.Row(tgui.Btn("+ Add account", tgui.Data(prefixMenu, "add_account", "")))
	}
	if len(accs) > 0 {
		kb.Row(tgui.Btn("Disconnect account", tgui.Data(prefixMenu, "remove_acct", "")))
	}
	kb.Row(btnBack("main"))
	return b.Inline(kb).Build()
}

func removeAccountMenu(accs []storage.Account) tgui.Message {
	kb := tgui.NewInline()
	for _, a := range accs {
		kb.Row(tgui.Btn("✖ "+a.Phone, tgui.DataID(prefixAcct, "off", a.ID)))
	}
	kb.Row(btnBack("accounts"))
	b := tgui.New()
	if len(accs) == 0 {
		b.Line(textNoAccounts)
	} else {
		b.Line(textAcctPick)
	}
	return b.Inline(kb).Build()
}

func addAccountMenu() tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("Connect by phone number", tgui.Data(prefixMenu, "phone", ""))).
		Row(tgui.Btn("Connect by API", tgui.Data(prefixMenu, "api", ""))).
		Row(btnBack("accounts"))
	return tgui.New().Line(textAddAccount).Inline(kb).Build()
}

func configureMenu(running bool) tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("Group mailing", tgui.Data(prefixMenu, "dests", ""))).
		Row(tgui.Btn("Set message", tgui.Data(prefixMenu, "message", "")))
	if running {
		kb.Row(tgui.Btn("Cancel mailing", tgui.Data(prefixMenu, "stop", "")))
	} else {
		kb.Row(tgui.Btn("Start mailing", tgui.Data(prefixMenu, "start", "")))
	}
	kb.Row(btnBack("main"))
	b := tgui.New().Title(textConfigure)
	if running {
		b.Line("A mailing is running.")
	}
	return b.Inline(kb).Build()
}

func destLabel(d storage.Destination) string {
	if d.Title != "" {
		return d.Title
	}
	return d.Ident
}

func destinationsMenu(dests []storage.Destination) tgui.Message {
	b := tgui.New().Title(textDestinations).Blank().Line("Added groups:")
	if len(dests) == 0 {
		b.Line(textNoGroups)
	}
	for _, d := range dests {
		b.RawLine(tgui.JoinH(" ", "•", tgui.Code(d.Ident), tgui.Esc(d.Title)))
	}
	kb := tgui.NewInline().Row(tgui.Btn("Add group", tgui.Data(prefixMenu, "add_dest", "")))
	if len(dests) > 0 {
		kb.Row(tgui.Btn("Remove group", tgui.Data(prefixMenu, "remove_dest", "")))
	}
	kb.Row(btnBack("configure"))
	return b.Inline(kb).Build()
}

// removeMenu lists one page of destinations as removal buttons.
func removeMenu(dests []storage.Destination, page int) tgui.Message {
	p := tgui.Paginate(dests, page, destPageSize)
	kb := tgui.NewInline()
	for _, d := range p.Items {
		kb.Row(tgui.Btn("✖ "+tgui.Preview(destLabel(d), 40), tgui.DataID(prefixDest, "off", d.ID)))
	}
	var nav []tele.Btn
	if p.HasPrev {
		nav = append(nav, tgui.Btn("‹ Prev", tgui.Data(prefixMenu, "remove_dest", strconv.Itoa(p.Index-1))))
	}
	if p.HasNext {
		nav = append(nav, tgui.Btn("Next ›", tgui.Data(prefixMenu, "remove_dest", strconv.Itoa(p.Index+1))))
	}
	kb.Row(nav...)
	kb.Row(btnBack("dests"))

	b := tgui.New()
	if len(dests) == 0 {
		b.Line(textNoGroups)
	} else {
		b.Line(textRemovePick)
		if p.Pages > 1 {
			b.Line(p.Label())
		}
	}
	return b.Inline(kb).Build()
}

func textScreen(text, back string) tgui.Message {
	return tgui.New().Line(text).Inline(tgui.NewInline().Row(btnBack(back))).Build()
}

func supportScreen(url string) tgui.Message {
	kb := tgui.NewInline()
	if url != "" {
		kb.Row(tgui.URLBtn("Contact support", url))
	}
	kb.Row(btnBack("main"))
	return tgui.New().Line(textSupport).Inline(kb).Build()
}

// show edits the pressed message in place, or sends a new one for commands.
func show(ctx context.Context, req *router.Request, m tgui.Message) error {
	if ref, ok := req.MessageRef(); ok {
		return m.Edit(ctx, req.Adapter, ref, req.Chat)
	}
	_, err := m.Send(ctx, req.Adapter, req.Chat)
	return err
}
