package tgui

import (
	"html"
	"strings"
)

// H is text already escaped for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text.
func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name, s string) H {
	return H("<" + name + ">" + html.EscapeString(s) + "</" + name + ">")
}

// B is bold text.
func B(s string) H { return tag("b", s) }

// Code is inline monospace, used for phones and chat ids.
func Code(s string) H { return tag("code", s) }

// JoinH joins the non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(string(p)) != "" {
			kept = append(kept, p)
		}
	}
	var sb strings.Builder
	for i, p := range kept {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(string(p))
	}
	return H(sb.String())
}
