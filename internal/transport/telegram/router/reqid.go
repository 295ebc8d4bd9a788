package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID returns a short log correlation id such as "k2x9f0a-1b".
// Uniqueness only matters within one process lifetime.
func newReqID() string {
	ms := time.Now().UnixMilli() % (36 * 36 * 36 * 36 * 36 * 36 * 36)
	seq := ridSeq.Add(1)
	return strconv.FormatInt(ms, 36) + "-" + strconv.FormatUint(seq, 36)
}

// splitArgs splits command arguments, honoring quotes and backslash escapes:
//
//	/cmd a "b c" 'd'
func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ:
			if ch == qChar {
				inQ = false
			} else {
				buf.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			inQ, qChar = true, ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}
