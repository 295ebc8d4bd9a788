package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionsExpire(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	s := NewSessions().WithTTL(time.Minute)
	s.now = func() time.Time { return now }

	s.Set(1, AwaitingPhone{})
	assert.Equal(t, AwaitingPhone{}, s.Get(1))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, Idle{}, s.Get(1))
	assert.Equal(t, 0, s.Len())
}

func TestSessionsIdleDeletes(t *testing.T) {
	t.Parallel()

	s := NewSessions()
	s.Set(1, AwaitingDestination{})
	s.Reset(1)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, Idle{}, s.Get(1))
}

func TestSessionsSweep(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	s := NewSessions().WithTTL(time.Minute)
	s.now = func() time.Time { return now }

	s.Set(1, AwaitingPhone{})
	now = now.Add(30 * time.Second)
	s.Set(2, AwaitingPhone{})
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, AwaitingPhone{}, s.Get(2))
}

func TestSessionsMaxEvictsOldest(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	s := NewSessions().WithMax(2)
	s.now = func() time.Time { return now }

	s.Set(1, AwaitingPhone{})
	now = now.Add(time.Second)
	s.Set(2, AwaitingPhone{})
	now = now.Add(time.Second)
	s.Set(3, AwaitingPhone{})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, Idle{}, s.Get(1))
	assert.Equal(t, AwaitingPhone{}, s.Get(3))
}
