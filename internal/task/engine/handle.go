package engine

import (
	"context"
	"sync"
)

// Handle is the future of a submitted task.
type Handle struct {
	ID   string
	Name string

	done chan struct{}
	err  error

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
}

func newHandle(id, name string) *Handle {
	return &Handle{ID: id, Name: name, done: make(chan struct{})}
}

// Done is closed when the task finished, failed or was dropped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task result; valid after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels a running task's context, or prevents a queued task
// from starting.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// begin binds the run context; it reports false when Cancel came first.
func (h *Handle) begin(cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return false
	}
	h.cancel = cancel
	return true
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}
