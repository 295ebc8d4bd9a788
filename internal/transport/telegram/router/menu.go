package router

import (
	"sort"
	"strings"

	kit "postbot/internal/transport"
)

// sanitizeCommand maps a name onto Telegram's [a-z0-9_]{1,32} command alphabet.
func sanitizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// menuCommands lists visible commands for the platform menu, public
// commands first.
func menuCommands(cmds []Command) []kit.BotCommand {
	visible := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if !c.Hidden && sanitizeCommand(c.Name) != "" {
			visible = append(visible, c)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Access < visible[j].Access
	})
	out := make([]kit.BotCommand, 0, len(visible))
	for _, c := range visible {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		out = append(out, kit.BotCommand{Command: sanitizeCommand(c.Name), Description: desc})
	}
	return out
}

// HelpText renders the command list for /help.
func HelpText(cmds []Command, owner bool) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range cmds {
		if c.Hidden || (c.Access == AccessOwnerOnly && !owner) {
			continue
		}
		b.WriteString("/" + c.Name)
		if c.Description != "" {
			b.WriteString(" - " + c.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
