package bot

import (
	"context"
	"sync"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/broadcast"
	"postbot/internal/conversation"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
)

type memStore struct {
	mu       sync.Mutex
	users    map[int64]bool
	accounts []storage.Account
	dests    []storage.Destination
	message  string
	logs     []storage.LogEntry
	removed  []storage.Note
	stats    storage.Stats
	listErr  error
}

func newMemStore() *memStore { return &memStore{users: map[int64]bool{}} }

func (s *memStore) EnsureUser(_ context.Context, uid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[uid] = true
	return nil
}

func (s *memStore) ListActiveAccounts(_ context.Context, _ int64) ([]storage.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Account(nil), s.accounts...), s.listErr
}

func (s *memStore) CountActiveAccounts(_ context.Context, _ int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

func (s *memStore) DeactivateAccount(_ context.Context, _ int64, id int64, notes ...storage.Note) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.accounts {
		if a.ID == id {
			s.accounts = append(s.accounts[:i:i], s.accounts[i+1:]...)
			s.removed = append(s.removed, notes...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListActiveDestinations(_ context.Context, _ int64) ([]storage.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Destination
	for _, d := range s.dests {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) DeactivateDestination(_ context.Context, _ int64, id int64, notes ...storage.Note) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.dests {
		if s.dests[i].ID == id && s.dests[i].Active {
			s.dests[i].Active = false
			s.removed = append(s.removed, notes...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CurrentMessage(_ context.Context, _ int64) (storage.MessageDraft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.MessageDraft{Body: s.message}, s.message != "", nil
}

func (s *memStore) AppendLog(_ context.Context, e storage.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return nil
}

func (s *memStore) Stats(context.Context) (storage.Stats, error) { return s.stats, nil }

func (s *memStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.Action)
	}
	return out
}

type fakeDispatcher struct {
	mu       sync.Mutex
	startErr error
	started  int
	running  bool
}

func (d *fakeDispatcher) Start(context.Context, int64) (*broadcast.Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return nil, d.startErr
	}
	d.started++
	d.running = true
	return &broadcast.Run{}, nil
}

func (d *fakeDispatcher) Cancel(int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	was := d.running
	d.running = false
	return was
}

func (d *fakeDispatcher) Active(int64) (*broadcast.Run, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return &broadcast.Run{}, true
	}
	return nil, false
}

type fakeExecutor struct {
	mu      sync.Mutex
	live    bool
	applied [][]conversation.Effect
}

func (x *fakeExecutor) LiveCodes() bool { return x.live }

func (x *fakeExecutor) Apply(_ context.Context, _ int64, effects []conversation.Effect) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.applied = append(x.applied, effects)
	return nil
}

func (x *fakeExecutor) last() []conversation.Effect {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.applied) == 0 {
		return nil
	}
	return x.applied[len(x.applied)-1]
}

type inbox struct {
	mu   sync.Mutex
	msgs []string
	got  chan struct{}
}

func newInbox() *inbox { return &inbox{got: make(chan struct{}, 16)} }

func (n *inbox) Notify(_ context.Context, _ int64, text string) error {
	n.mu.Lock()
	n.msgs = append(n.msgs, text)
	n.mu.Unlock()
	n.got <- struct{}{}
	return nil
}

type screen struct {
	text   string
	markup *tele.ReplyMarkup
	edited bool
}

type fakeAdapter struct {
	mu      sync.Mutex
	screens []screen
}

func (f *fakeAdapter) record(text string, opt *kit.SendOptions, edited bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc := screen{text: text, edited: edited}
	if opt != nil {
		sc.markup, _ = opt.ReplyMarkup.(*tele.ReplyMarkup)
	}
	f.screens = append(f.screens, sc)
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.record(text, opt, false)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.record(text, opt, true)
	return nil
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) last() screen {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.screens) == 0 {
		return screen{}
	}
	return f.screens[len(f.screens)-1]
}

// buttons flattens the inline keyboard into callback data.
func (s screen) buttons() []string {
	if s.markup == nil {
		return nil
	}
	var out []string
	for _, row := range s.markup.InlineKeyboard {
		for _, b := range row {
			if b.Data != "" {
				out = append(out, b.Data)
			} else {
				out = append(out, b.URL)
			}
		}
	}
	return out
}
