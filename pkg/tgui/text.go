package tgui

import "strings"

// Preview flattens s to one line and cuts it to n runes with an ellipsis.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
