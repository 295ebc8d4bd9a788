package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	rtsup "postbot/internal/runtime/supervisor"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service is safe for concurrent use.
type Service struct {
	mu        sync.Mutex
	cfg       Config
	sender    kit.Sender
	log       logx.Logger
	bus       eventbus.Bus
	limiter   *rate.Limiter
	queues    []chan kit.Notification
	accepting bool
	enqueueWG sync.WaitGroup
	sup       *rtsup.Supervisor

	dmu   sync.Mutex
	dedup map[uint64]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log.With(logx.String("comp", "notifier")), bus: bus, dedup: map[uint64]time.Time{}}
	s.Apply(cfg)
	return s
}

// Apply updates pacing and dedup; worker and queue sizes apply on the
// next Start.
func (s *Service) Apply(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	s.mu.Lock()
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
		s.limiter.SetBurst(cfg.RatePerSec)
	}
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queues != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.queues = make([]chan kit.Notification, cfg.Workers)
	for i := range s.queues {
		s.queues[i] = make(chan kit.Notification, max(cfg.QueueSize/cfg.Workers, 1))
	}
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup, queues := s.sup, s.queues
	s.mu.Unlock()

	for i, q := range queues {
		sup.GoRestart(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
}

// Stop refuses new messages and drains what is queued until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	queues, sup := s.queues, s.sup
	if queues == nil || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	s.enqueueWG.Wait()
	for _, q := range queues {
		close(q)
	}
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		sup.Cancel()
		s.log.Warn("notifier stop timed out; pending messages dropped")
	}
	s.mu.Lock()
	s.queues, s.sup = nil, nil
	s.mu.Unlock()
}

// Notify queues text for userID's private chat. It is the bot's reply path
// for background work.
func (s *Service) Notify(ctx context.Context, userID int64, text string) error {
	return s.Enqueue(ctx, kit.Notification{Target: kit.ChatTarget{ChatID: userID}, Text: text})
}

// Enqueue never blocks; a full shard reports ErrQueueFull.
func (s *Service) Enqueue(ctx context.Context, n kit.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Text == "" {
		return nil
	}
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queues[shard(n.Target.ChatID, len(s.queues))]
	window, maxEntries := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	s.enqueueWG.Add(1)
	s.mu.Unlock()
	defer s.enqueueWG.Done()

	if n.Dedup && window > 0 && !s.dedupAllow(n, window, maxEntries) {
		s.publish(EventDeduped, n.Target.ChatID, nil)
		return nil
	}
	select {
	case q <- n:
		return nil
	default:
		s.publish(EventDropped, n.Target.ChatID, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) workerLoop(ctx context.Context, q <-chan kit.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, n)
		}
	}
}

func (s *Service) send(ctx context.Context, n kit.Notification) {
	s.mu.Lock()
	lim, timeout := s.limiter, s.cfg.SendTimeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	_, err := s.sender.SendText(callCtx, n.Target, n.Text, n.Options)
	cancel()

	item := HistoryItem{At: time.Now(), ChatID: n.Target.ChatID, Text: n.Text}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("notify send failed", logx.Int64("chat", n.Target.ChatID), logx.Err(err))
		s.publish(EventFailed, n.Target.ChatID, err)
	} else {
		s.publish(EventSent, n.Target.ChatID, nil)
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, chatID int64, err error) {
	if s.bus == nil {
		return
	}
	ev := Event{ChatID: chatID, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) dedupAllow(n kit.Notification, window time.Duration, maxEntries int) bool {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s", n.Target.ChatID, n.Text)
	key := h.Sum64()
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// over the cap, drop the entries closest to expiry
	for len(s.dedup) > maxEntries {
		var (
			minKey uint64
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minT.IsZero() || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

func shard(chatID int64, n int) int {
	if chatID < 0 {
		chatID = -chatID
	}
	return int(chatID % int64(n))
}
