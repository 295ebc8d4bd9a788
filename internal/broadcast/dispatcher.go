package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"postbot/internal/eventbus"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

// Dispatcher validates, starts and tracks broadcast runs.
type Dispatcher struct {
	store  Store
	sender Sender
	engine Engine
	bus    eventbus.Bus
	log    logx.Logger

	// runTimeout bounds a whole run; 0 means unbounded
	runTimeout atomic.Int64

	mu   sync.Mutex
	runs map[int64]*Run
}

func New(store Store, sender Sender, eng Engine, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		store:  store,
		sender: sender,
		engine: eng,
		bus:    bus,
		log:    log.With(logx.String("comp", "broadcast")),
		runs:   map[int64]*Run{},
	}
}

// SetRunTimeout bounds runs started from now on; 0 means unbounded.
func (d *Dispatcher) SetRunTimeout(t time.Duration) {
	d.runTimeout.Store(int64(max(t, 0)))
}

// Check verifies that userID has accounts, destinations and a message,
// in that order. It never writes.
func (d *Dispatcher) Check(ctx context.Context, userID int64) error {
	accs, err := d.store.ListActiveAccounts(ctx, userID)
	if err != nil {
		return err
	}
	if len(accs) == 0 {
		return &PreconditionError{Reason: ErrNoAccounts}
	}
	dests, err := d.store.ListActiveDestinations(ctx, userID)
	if err != nil {
		return err
	}
	if len(dests) == 0 {
		return &PreconditionError{Reason: ErrNoDestinations}
	}
	_, ok, err := d.store.CurrentMessage(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &PreconditionError{Reason: ErrNoMessage}
	}
	return nil
}

// Start checks the preconditions and submits a run. It returns as soon as
// the run is queued.
func (d *Dispatcher) Start(ctx context.Context, userID int64) (*Run, error) {
	if err := d.Check(ctx, userID); err != nil {
		return nil, err
	}

	run := &Run{ID: uuid.NewString(), UserID: userID, Started: time.Now()}
	d.mu.Lock()
	if _, busy := d.runs[userID]; busy {
		d.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	d.runs[userID] = run
	d.mu.Unlock()

	if err := d.store.AppendLog(ctx, storage.LogEntry{UserID: userID, Action: storage.ActionMailingStarted, Details: "run: " + run.ID}); err != nil {
		d.forget(run)
		return nil, err
	}

	h, err := d.engine.Submit(ctx, engine.Task{
		ID:      run.ID,
		Name:    "broadcast",
		Key:     "broadcast:" + strconv.FormatInt(userID, 10),
		Overlap: engine.OverlapSkipIfRunning,
		Timeout: time.Duration(d.runTimeout.Load()),
		Run: func(ctx context.Context) error {
			run.began.Store(true)
			defer d.forget(run)
			sum, err := d.execute(ctx, run)
			run.summary = sum
			d.publish(sum, err)
			return err
		},
	})
	if err != nil {
		d.forget(run)
		if errors.Is(err, engine.ErrOverlapSkip) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("submit broadcast: %w", err)
	}
	d.mu.Lock()
	run.handle = h
	d.mu.Unlock()
	go d.settle(run, h)
	d.log.Info("broadcast started", logx.Int64("user", userID), logx.String("run", run.ID))
	return run, nil
}

// Cancel stops the user's run at the next destination boundary.
func (d *Dispatcher) Cancel(userID int64) bool {
	d.mu.Lock()
	var h *engine.Handle
	if run := d.runs[userID]; run != nil {
		h = run.handle
	}
	d.mu.Unlock()
	if h == nil {
		return false
	}
	h.Cancel()
	return true
}

// Active returns the user's in-flight run.
func (d *Dispatcher) Active(userID int64) (*Run, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[userID]
	return run, ok
}

// settle releases the user's slot once the handle completes. A run dropped
// before it began (cancelled in the queue or shut down) still gets its
// cancel record and summary.
func (d *Dispatcher) settle(run *Run, h *engine.Handle) {
	<-h.Done()
	if !run.began.Load() {
		sum := Summary{RunID: run.ID, UserID: run.UserID, Cancelled: true}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.audit(ctx, run.UserID, storage.ActionMailingCancelled, "run: "+run.ID+", not started")
		cancel()
		d.log.Info("broadcast dropped before start", logx.Int64("user", run.UserID), logx.String("run", run.ID), logx.Err(h.Err()))
		d.publish(sum, context.Canceled)
	}
	d.forget(run)
}

func (d *Dispatcher) forget(run *Run) {
	d.mu.Lock()
	if d.runs[run.UserID] == run {
		delete(d.runs, run.UserID)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) publish(sum Summary, err error) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.BroadcastFinished, Data: Result{Summary: sum, Err: err}})
}

// Result is the payload of eventbus.BroadcastFinished.
type Result struct {
	Summary Summary
	Err     error
}
