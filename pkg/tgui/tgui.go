package tgui

import tele "gopkg.in/telebot.v4"

// Inline collects keyboard rows for one message.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline { return &Inline{rm: &tele.ReplyMarkup{}} }

// Row adds btns as one row; a call without buttons does nothing, so
// optional navigation rows can be passed unconditionally.
func (kb *Inline) Row(btns ...tele.Btn) *Inline {
	if len(btns) > 0 {
		kb.rows = append(kb.rows, btns)
		kb.rm.Inline(kb.rows...)
	}
	return kb
}

func (kb *Inline) Rows() int { return len(kb.rows) }

func (kb *Inline) Markup() *tele.ReplyMarkup { return kb.rm }

// Btn is a callback button; data usually comes from Data or DataID.
func Btn(text, data string) tele.Btn { return tele.Btn{Text: text, Data: data} }

func URLBtn(text, url string) tele.Btn { return tele.Btn{Text: text, URL: url} }
