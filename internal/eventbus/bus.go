// Package eventbus is a small in-process fanout used to report task and
// broadcast outcomes without coupling producers to consumers.
package eventbus

import (
	"sync"
	"time"
)

const (
	TaskStarted  = "task.started"
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskSkipped  = "task.skipped"
	TaskDropped  = "task.dropped"

	AccountConnected = "account.connected"
	AccountFailed    = "account.failed"

	BroadcastFinished = "broadcast.finished"
)

// Event carries a type tag and an optional payload. Publishers own Data;
// subscribers must treat it as read-only.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	// Publish never blocks. A subscriber whose buffer is full misses e.
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &fanout{subs: map[*subscriber]struct{}{}}
}

type subscriber struct {
	ch chan Event
}

type fanout struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func (f *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// unsubscribe closes under the write lock, so sends here are safe
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (f *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, max(buffer, 1))}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, s)
			close(s.ch)
			f.mu.Unlock()
		})
	}
}
