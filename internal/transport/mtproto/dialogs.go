package mtproto

import (
	"context"
	"strconv"

	"github.com/gotd/td/tg"
)

// resolveNumeric maps a numeric id to an input peer. Basic groups need no
// access hash; users and channels are looked up in the account's dialogs.
func (c *conn) resolveNumeric(ctx context.Context, t target) (tg.InputPeerClass, error) {
	if t.kind == peerChat {
		return &tg.InputPeerChat{ChatID: t.id}, nil
	}

	c.mu.Lock()
	p, ok := c.peers[t]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	if err := c.scanDialogs(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	p, ok = c.peers[t]
	c.mu.Unlock()
	if !ok {
		return nil, &UnknownDestinationError{Destination: formatTarget(t)}
	}
	return p, nil
}

// scanDialogs pages through the dialog list and caches every user and
// channel peer with its access hash.
func (c *conn) scanDialogs(ctx context.Context) error {
	req := &tg.MessagesGetDialogsRequest{OffsetPeer: &tg.InputPeerEmpty{}, Limit: 100}
	for page := 0; page < c.dialogPages; page++ {
		res, err := c.api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return err
		}

		var (
			dialogs  []tg.DialogClass
			messages []tg.MessageClass
			chats    []tg.ChatClass
			users    []tg.UserClass
			last     bool
		)
		switch r := res.(type) {
		case *tg.MessagesDialogs:
			dialogs, messages, chats, users, last = r.Dialogs, r.Messages, r.Chats, r.Users, true
		case *tg.MessagesDialogsSlice:
			dialogs, messages, chats, users = r.Dialogs, r.Messages, r.Chats, r.Users
		default:
			return nil
		}
		c.remember(chats, users)
		if last || len(dialogs) < req.Limit {
			return nil
		}

		next, ok := c.nextOffset(dialogs[len(dialogs)-1], messages)
		if !ok {
			return nil
		}
		req = next
	}
	return nil
}

func (c *conn) remember(chats []tg.ChatClass, users []tg.UserClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chats {
		switch v := ch.(type) {
		case *tg.Chat:
			c.peers[target{kind: peerChat, id: v.ID}] = &tg.InputPeerChat{ChatID: v.ID}
		case *tg.Channel:
			c.peers[target{kind: peerChannel, id: v.ID}] = &tg.InputPeerChannel{ChannelID: v.ID, AccessHash: v.AccessHash}
		case *tg.ChannelForbidden:
			c.peers[target{kind: peerChannel, id: v.ID}] = &tg.InputPeerChannel{ChannelID: v.ID, AccessHash: v.AccessHash}
		}
	}
	for _, u := range users {
		if v, ok := u.(*tg.User); ok {
			c.peers[target{kind: peerUser, id: v.ID}] = &tg.InputPeerUser{UserID: v.ID, AccessHash: v.AccessHash}
		}
	}
}

// nextOffset builds the request for the page after lastDialog.
func (c *conn) nextOffset(lastDialog tg.DialogClass, messages []tg.MessageClass) (*tg.MessagesGetDialogsRequest, bool) {
	d, ok := lastDialog.(*tg.Dialog)
	if !ok {
		return nil, false
	}
	var key target
	switch p := d.Peer.(type) {
	case *tg.PeerUser:
		key = target{kind: peerUser, id: p.UserID}
	case *tg.PeerChat:
		key = target{kind: peerChat, id: p.ChatID}
	case *tg.PeerChannel:
		key = target{kind: peerChannel, id: p.ChannelID}
	default:
		return nil, false
	}
	c.mu.Lock()
	offsetPeer, ok := c.peers[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	date := 0
	for _, m := range messages {
		switch v := m.(type) {
		case *tg.Message:
			if v.ID == d.TopMessage {
				date = v.Date
			}
		case *tg.MessageService:
			if v.ID == d.TopMessage {
				date = v.Date
			}
		}
	}
	return &tg.MessagesGetDialogsRequest{
		OffsetDate: date,
		OffsetID:   d.TopMessage,
		OffsetPeer: offsetPeer,
		Limit:      100,
	}, true
}

func formatTarget(t target) string {
	switch t.kind {
	case peerChannel:
		return "-100" + strconv.FormatInt(t.id, 10)
	case peerChat:
		return "-" + strconv.FormatInt(t.id, 10)
	case peerUser:
		return strconv.FormatInt(t.id, 10)
	default:
		return "@" + t.username
	}
}
