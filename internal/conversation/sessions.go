package conversation

import (
	"sync"
	"time"
)

// Sessions keeps each user's dialogue state in memory with a TTL.
// Missing or expired entries read as Idle. Nothing here is durable.
type Sessions struct {
	mu sync.Mutex

	ttl time.Duration
	max int
	now func() time.Time

	m map[int64]sessionEntry
}

type sessionEntry struct {
	state State
	exp   time.Time
}

// NewSessions creates a store. Defaults: ttl=30m, max=10000.
func NewSessions() *Sessions {
	return &Sessions{
		ttl: 30 * time.Minute,
		max: 10000,
		now: time.Now,
		m:   map[int64]sessionEntry{},
	}
}

func (s *Sessions) WithTTL(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
	return s
}

func (s *Sessions) WithMax(max int) *Sessions {
	if max <= 0 {
		max = 10000
	}
	s.mu.Lock()
	s.max = max
	s.mu.Unlock()
	return s
}

func (s *Sessions) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[userID]
	if !ok {
		return Idle{}
	}
	if s.now().After(e.exp) {
		delete(s.m, userID)
		return Idle{}
	}
	return e.state
}

// Set stores st and refreshes the TTL. Idle removes the entry.
func (s *Sessions) Set(userID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if IsIdle(st) {
		delete(s.m, userID)
		return
	}
	s.m[userID] = sessionEntry{state: st, exp: s.now().Add(s.ttl)}
	s.enforceMaxLocked(userID)
}

func (s *Sessions) Reset(userID int64) { s.Set(userID, Idle{}) }

// Sweep drops expired entries and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// enforceMaxLocked evicts the entries closest to expiry, never keep.
func (s *Sessions) enforceMaxLocked(keep int64) {
	for len(s.m) > s.max {
		var (
			victim int64
			oldest time.Time
			found  bool
		)
		for k, e := range s.m {
			if k == keep {
				continue
			}
			if !found || e.exp.Before(oldest) {
				victim, oldest, found = k, e.exp, true
			}
		}
		if !found {
			return
		}
		delete(s.m, victim)
	}
}
