package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"postbot/internal/eventbus"
	rtsup "postbot/internal/runtime/supervisor"
	logx "postbot/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service runs background tasks on a bounded queue with supervised workers.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q        chan queuedTask
	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	// claimed holds overlap keys of queued or running tasks.
	keyMu   sync.Mutex
	claimed map[string]struct{}

	hmu     sync.Mutex
	history []HistoryItem

	idSeq    atomic.Uint64
	inFlight atomic.Int32
	dropped  atomic.Uint64

	lastQueueFullWarnAt atomic.Int64
}

type queuedTask struct {
	task       Task
	handle     *Handle
	enqueuedAt time.Time
	timeout    time.Duration
	key        string // claimed overlap key, if any
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "taskengine")),
		bus:    bus,
		claimed: map[string]struct{}{},
	}
}

// Start launches the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.q = make(chan queuedTask, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	stopCh, queue := s.stopCh, s.q
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// a failing task must not take the bot down
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

// Stop cancels running tasks and waits for the workers, bounded by ctx.
// Queued tasks that never started are finished with ErrStopped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil || s.stopDone != nil {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup, q := s.sup, s.q
	s.mu.Unlock()

	sup.Cancel()
	go func() {
		_ = sup.Wait(context.Background())
		s.drain(q)
		s.mu.Lock()
		s.q, s.stopCh, s.stopDone, s.sup = nil, nil, nil, nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("task engine stopped")
	case <-ctx.Done():
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Service) drain(q chan queuedTask) {
	for {
		select {
		case qt := <-q:
			s.unclaim(qt)
			qt.handle.finish(ErrStopped)
		default:
			return
		}
	}
}

// Submit enqueues t and blocks until it is accepted, ctx ends or the
// engine stops.
func (s *Service) Submit(ctx context.Context, t Task) (*Handle, error) {
	return s.enqueue(ctx, t, true)
}

// Enqueue is Submit without blocking; a full queue yields ErrQueueFull.
func (s *Service) Enqueue(t Task) (*Handle, error) {
	return s.enqueue(context.Background(), t, false)
}

func (s *Service) enqueue(ctx context.Context, t Task, block bool) (*Handle, error) {
	if t.Run == nil {
		return nil, errors.New("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, errors.New("task Name is required")
	}
	now := time.Now()
	if strings.TrimSpace(t.ID) == "" {
		t.ID = fmt.Sprintf("tsk-%x-%x", now.UnixNano(), s.idSeq.Add(1))
	}

	s.mu.Lock()
	q, stopCh, stopping, timeout := s.q, s.stopCh, s.stopDone != nil, s.cfg.DefaultTimeout
	s.mu.Unlock()
	if q == nil || stopCh == nil {
		return nil, ErrStopped
	}
	if stopping {
		return nil, ErrStopping
	}
	if t.Timeout > 0 {
		timeout = t.Timeout
	}

	var key string
	if t.Overlap == OverlapSkipIfRunning {
		key = overlapKey(t)
		if !s.claim(key) {
			s.publish(eventbus.TaskSkipped, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "overlap_skip"})
			s.log.Debug("task skipped due to overlap", logx.String("task", t.Name), logx.String("key", t.Key))
			return nil, ErrOverlapSkip
		}
	}

	qt := queuedTask{task: t, handle: newHandle(t.ID, t.Name), enqueuedAt: now, timeout: timeout, key: key}
	if !block {
		select {
		case q <- qt:
			return qt.handle, nil
		default:
			s.unclaim(qt)
			s.onQueueFull(now, t, q)
			return nil, ErrQueueFull
		}
	}
	select {
	case q <- qt:
		return qt.handle, nil
	case <-ctx.Done():
		s.unclaim(qt)
		return nil, ctx.Err()
	case <-stopCh:
		s.unclaim(qt)
		return nil, ErrStopping
	}
}

// running reports whether a task with the given overlap key is queued or
// in flight.
func (s *Service) running(key string) bool {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	_, ok := s.claimed[key]
	return ok
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg, q := s.cfg, s.q
	s.mu.Unlock()

	snap := Snapshot{
		Workers:  cfg.Workers,
		InFlight: int(s.inFlight.Load()),
		Dropped:  s.dropped.Load(),
	}
	if q != nil {
		snap.QueueLen, snap.QueueCap = len(q), cap(q)
	}
	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

// Supervisor exposes the worker supervisor for /status (nil when stopped).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func overlapKey(t Task) string {
	if k := strings.TrimSpace(t.Key); k != "" {
		return k
	}
	return t.Name
}

func (s *Service) claim(key string) bool {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	if _, busy := s.claimed[key]; busy {
		return false
	}
	s.claimed[key] = struct{}{}
	return true
}

func (s *Service) unclaim(qt queuedTask) {
	if qt.key == "" {
		return
	}
	s.keyMu.Lock()
	delete(s.claimed, qt.key)
	s.keyMu.Unlock()
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func (s *Service) recordHistory(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) onQueueFull(now time.Time, t Task, q chan queuedTask) {
	s.dropped.Add(1)
	s.publish(eventbus.TaskDropped, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "queue_full"})

	prev := s.lastQueueFullWarnAt.Load()
	if prev != 0 && now.UnixNano()-prev < int64(warnThrottleEvery) {
		return
	}
	if s.lastQueueFullWarnAt.CompareAndSwap(prev, now.UnixNano()) {
		s.log.Warn("task dropped: queue full",
			logx.String("task", t.Name),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)),
			logx.Uint64("dropped", s.dropped.Load()),
		)
	}
}
