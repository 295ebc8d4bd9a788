// Package router dispatches bot updates to command, callback and text
// handlers on per-user ordered workers.
package router

import (
	"context"
	"time"

	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Command is a slash command such as /start.
type Command struct {
	Name        string
	Description string
	Access      Access
	Timeout     time.Duration
	// Hidden commands are left out of the platform menu.
	Hidden bool
	Handle HandlerFunc
}

// CallbackRoute handles inline buttons whose data is "<prefix>:<action>[:payload]".
type CallbackRoute struct {
	Prefix  string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

// Request is one routed update.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	// Payload is the callback payload after the action.
	Payload string
	// Text is the raw message text.
	Text  string
	ReqID string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// MessageRef is the message a callback button was pressed on.
func (r *Request) MessageRef() (kit.MessageRef, bool) {
	cb := r.Update.Callback
	if cb == nil {
		return kit.MessageRef{}, false
	}
	return kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}, true
}
