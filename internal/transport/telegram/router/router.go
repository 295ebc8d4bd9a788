package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "postbot/internal/runtime/supervisor"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Texts sent by the router itself.
const (
	TextUnknownCommand = "Unknown command. Try /help."
	TextForbidden      = "This command is restricted."
	TextBusy           = "Busy, try again in a moment."
)

// Router routes updates. Updates of one user always run in arrival order
// on the same shard; different users run in parallel.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	mu        sync.RWMutex
	cmds      map[string]Command
	list      []Command
	callbacks map[string]CallbackRoute
	text      HandlerFunc
	isOwner   func(userID int64) bool

	shardCount int
	runMu      sync.Mutex
	shards     []chan func()
	sup        *rtsup.Supervisor
}

func New(log logx.Logger, adapter kit.Adapter, shards int) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:        log.With(logx.String("comp", "telegram.router")),
		adapter:    adapter,
		cmds:       map[string]Command{},
		callbacks:  map[string]CallbackRoute{},
		isOwner:    func(int64) bool { return true },
		shardCount: max(shards, 1),
	}
}

// SetOwnerCheck replaces the owner predicate; safe during reloads.
func (r *Router) SetOwnerCheck(fn func(userID int64) bool) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.isOwner = fn
	r.mu.Unlock()
}

// SetRegistry installs the handlers. text receives private, non-command
// messages.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute, text HandlerFunc) {
	byName := make(map[string]Command, len(cmds))
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		list = append(list, c)
	}
	routes := make(map[string]CallbackRoute, len(cbs))
	for _, cb := range cbs {
		if cb.Prefix == "" || cb.Action == "" || cb.Handle == nil {
			continue
		}
		routes[cb.Prefix+":"+cb.Action] = cb
	}

	r.mu.Lock()
	r.cmds, r.list, r.callbacks, r.text = byName, list, routes, text
	r.mu.Unlock()
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.list...)
}

// IsOwner applies the current owner predicate.
func (r *Router) IsOwner(userID int64) bool {
	r.mu.RLock()
	fn := r.isOwner
	r.mu.RUnlock()
	return fn(userID)
}

// PublishMenu pushes the command list to the platform menu if supported.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, menuCommands(r.Commands()))
}

// Run dispatches updates until ctx ends or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log))
	shards := make([]chan func(), r.shardCount)
	for i := range shards {
		shards[i] = make(chan func(), 64)
	}
	r.runMu.Lock()
	r.shards, r.sup = shards, sup
	r.runMu.Unlock()

	for i, q := range shards {
		sup.GoRestart("router.shard."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-q:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("router started", logx.Int("shards", len(shards)))

	defer func() {
		r.runMu.Lock()
		r.shards = nil
		r.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Supervisor returns the shard supervisor while running.
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// Route handles one update. Exported for tests and for callers that feed
// updates without Run, in which case handlers run inline.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil || !msg.Private {
		return
	}
	req := r.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID}, msg.FromID)
	req.Text = msg.Text

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		r.mu.RLock()
		h := r.text
		r.mu.RUnlock()
		if h == nil {
			return
		}
		req.Command = "text"
		r.dispatch(ctx, req, h, AccessEveryone, 0, nil)
		return
	}

	head, rest, _ := strings.Cut(text, " ")
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(head), "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	r.mu.RLock()
	cmd, ok := r.cmds[name]
	r.mu.RUnlock()
	if !ok {
		_, _ = r.adapter.SendText(ctx, req.Chat, TextUnknownCommand, nil)
		return
	}
	req.Command = "/" + name
	req.Args = splitArgs(rest)
	r.dispatch(ctx, req, cmd.Handle, cmd.Access, cmd.Timeout, func() {
		_, _ = r.adapter.SendText(ctx, req.Chat, TextForbidden, nil)
	})
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	r.mu.RLock()
	route, ok := r.callbacks[parts[0]+":"+parts[1]]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID}, cb.FromID)
	req.Command = "cb:" + parts[0] + ":" + parts[1]
	if len(parts) == 3 {
		req.Payload = parts[2]
	}
	handle := func(ctx context.Context, req *Request) error {
		err := route.Handle(ctx, req)
		// stop the client spinner
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return err
	}
	r.dispatch(ctx, req, handle, route.Access, route.Timeout, func() {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, TextForbidden)
	})
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger:  r.log.With(logx.String("rid", rid), logx.Int64("from_id", from)),
	}
}

func (r *Router) dispatch(ctx context.Context, req *Request, h HandlerFunc, access Access, timeout time.Duration, deny func()) {
	if access == AccessOwnerOnly && !r.IsOwner(req.FromID) {
		if deny != nil {
			deny()
		}
		return
	}
	final := Chain(h, Recover(r.log), LogRequests(r.log), WithTimeout(timeout))
	job := func() { _ = final(ctx, req) }

	r.runMu.Lock()
	shards := r.shards
	r.runMu.Unlock()
	if shards == nil {
		job()
		return
	}
	q := shards[shardFor(req.FromID, len(shards))]
	select {
	case q <- job:
	default:
		r.log.Warn("shard queue full", logx.Int64("from_id", req.FromID))
		_, _ = r.adapter.SendText(ctx, req.Chat, TextBusy, nil)
	}
}

func shardFor(userID int64, n int) int {
	if userID < 0 {
		userID = -userID
	}
	return int(userID % int64(n))
}
