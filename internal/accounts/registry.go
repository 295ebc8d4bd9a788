package accounts

import (
	"context"
	"sync"
	"time"
)

// Registry caches live connections keyed by phone.
//
// Each phone has a one-slot lock: Acquire holds it until Release, so one
// account is never driven by two runs at once.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
	now   func() time.Time
}

type slot struct {
	sem      chan struct{}
	conn     Conn
	lastUsed time.Time
}

func NewRegistry() *Registry {
	return &Registry{slots: map[string]*slot{}, now: time.Now}
}

func (r *Registry) slot(phone string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[phone]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		r.slots[phone] = s
	}
	return s
}

// Acquire locks phone and returns its cached connection, dialing a new one
// when none is cached or the cached one lost authorization.
// On success the caller must call Release.
func (r *Registry) Acquire(ctx context.Context, phone string, dial func(ctx context.Context) (Conn, error)) (Conn, error) {
	s := r.slot(phone)
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	c := s.conn
	r.mu.Unlock()
	if c != nil && c.Authorized() {
		r.touch(s, c)
		return c, nil
	}
	if c != nil {
		_ = c.Close()
	}

	c, err := dial(ctx)
	if err != nil {
		r.mu.Lock()
		s.conn = nil
		r.mu.Unlock()
		<-s.sem
		return nil, err
	}
	r.touch(s, c)
	return c, nil
}

func (r *Registry) touch(s *slot, c Conn) {
	r.mu.Lock()
	s.conn = c
	s.lastUsed = r.now()
	r.mu.Unlock()
}

// Release unlocks phone. With closeConn the cached connection is closed
// and dropped.
func (r *Registry) Release(phone string, closeConn bool) {
	r.mu.Lock()
	s, ok := r.slots[phone]
	var c Conn
	if ok {
		s.lastUsed = r.now()
		if closeConn {
			c, s.conn = s.conn, nil
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if c != nil {
		_ = c.Close()
	}
	select {
	case <-s.sem:
	default:
	}
}

// Put caches c for phone, closing whatever was cached before.
// It waits for the phone lock.
func (r *Registry) Put(ctx context.Context, phone string, c Conn) error {
	s := r.slot(phone)
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.mu.Lock()
	old := s.conn
	s.conn = c
	s.lastUsed = r.now()
	r.mu.Unlock()
	if old != nil && old != c {
		_ = old.Close()
	}
	<-s.sem
	return nil
}

// Evict closes the cached connection for phone if it is not in use.
func (r *Registry) Evict(phone string) bool {
	r.mu.Lock()
	s, ok := r.slots[phone]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.evictSlot(s, func(*slot) bool { return true })
}

// EvictIdle closes connections unused for longer than maxIdle. Locked
// slots are skipped. It returns how many were closed.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	all := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		all = append(all, s)
	}
	cutoff := r.now().Add(-maxIdle)
	r.mu.Unlock()

	n := 0
	for _, s := range all {
		if r.evictSlot(s, func(s *slot) bool { return s.lastUsed.Before(cutoff) }) {
			n++
		}
	}
	return n
}

func (r *Registry) evictSlot(s *slot, pred func(*slot) bool) bool {
	select {
	case s.sem <- struct{}{}:
	default:
		return false
	}
	defer func() { <-s.sem }()

	r.mu.Lock()
	c := s.conn
	if c == nil || !pred(s) {
		r.mu.Unlock()
		return false
	}
	s.conn = nil
	r.mu.Unlock()
	_ = c.Close()
	return true
}

// CloseAll closes every cached connection, in use or not. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var conns []Conn
	for _, s := range r.slots {
		if s.conn != nil {
			conns = append(conns, s.conn)
			s.conn = nil
		}
	}
	r.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Len returns the number of cached connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.slots {
		if s.conn != nil {
			n++
		}
	}
	return n
}
