package mtproto

import (
	"strconv"
	"strings"
)

type peerKind int

const (
	peerUsername peerKind = iota
	peerUser
	peerChat
	peerChannel
)

// target is a parsed destination string.
type target struct {
	kind     peerKind
	id       int64
	username string
}

// parseTarget accepts "@name", "name", "t.me/name", "https://t.me/name",
// "-100<channel id>", "-<chat id>" and "<user id>".
func parseTarget(s string) (target, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return target{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case strings.HasPrefix(s, "-100") && len(s) > 4:
			id, _ := strconv.ParseInt(s[4:], 10, 64)
			return target{kind: peerChannel, id: id}, id > 0
		case n < 0:
			return target{kind: peerChat, id: -n}, true
		case n > 0:
			return target{kind: peerUser, id: n}, true
		default:
			return target{}, false
		}
	}

	name := s
	for _, p := range []string{"https://", "http://"} {
		name = strings.TrimPrefix(name, p)
	}
	for _, p := range []string{"www.t.me/", "t.me/", "telegram.me/"} {
		name = strings.TrimPrefix(name, p)
	}
	name = strings.TrimPrefix(name, "@")
	if i := strings.IndexAny(name, "/?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return target{}, false
	}
	return target{kind: peerUsername, username: name}, true
}
