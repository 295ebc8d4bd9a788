package engine

import "errors"

var (
	// ErrStopped is returned by Submit after Stop and finishes queued tasks
	// that never ran.
	ErrStopped  = errors.New("engine: stopped")
	ErrStopping = errors.New("engine: shutting down")
	// ErrQueueFull only comes from Enqueue; Submit waits for room.
	ErrQueueFull = errors.New("engine: queue full")
	// ErrOverlapSkip means a task with the same key is still running.
	ErrOverlapSkip = errors.New("engine: same key already running")
	ErrCancelled   = errors.New("engine: cancelled while queued")
)
