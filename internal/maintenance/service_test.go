package maintenance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

func startEngine(t *testing.T) *engine.Service {
	t.Helper()
	e := engine.New(engine.Config{Workers: 1}, logx.Nop(), nil)
	e.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		e.Stop(ctx)
	})
	return e
}

type countingEvicter struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (c *countingEvicter) EvictIdle(d time.Duration) int {
	c.calls.Add(1)
	c.ttl.Store(int64(d))
	return 1
}

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int { c.calls.Add(1); return 0 }

func TestNewRejectsBadTimezone(t *testing.T) {
	_, err := New(nil, "Mars/Olympus", logx.Nop())
	require.Error(t, err)

	s, err := New(nil, "UTC", logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, "UTC", s.loc.String())
}

func TestAddValidatesSchedule(t *testing.T) {
	s, err := New(nil, "", logx.Nop())
	require.NoError(t, err)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Name: "x", Schedule: "every day", Run: noop}))
	assert.Error(t, s.Add(Job{Schedule: "@hourly", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "x", Schedule: "*/5 * * * *", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "x", Schedule: "@every 1m", Run: noop}))

	sched := s.Schedules()
	require.Len(t, sched, 1)
	assert.Equal(t, "@every 1m", sched[0].Spec)
	assert.True(t, sched[0].Next.IsZero())
}

func TestRunNowExecutesOnEngine(t *testing.T) {
	eng := startEngine(t)
	s, err := New(eng, "", logx.Nop())
	require.NoError(t, err)
	ev := &countingEvicter{}
	sw := &countingSweeper{}
	require.NoError(t, s.Add(EvictIdleJob(ev, "@every 1m", 10*time.Minute, logx.Nop())))
	require.NoError(t, s.Add(SweepSessionsJob(sw, "@every 5m", logx.Nop())))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, err := s.RunNow(ctx, JobEvictIdle)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))
	assert.Equal(t, int32(1), ev.calls.Load())
	assert.Equal(t, int64(10*time.Minute), ev.ttl.Load())

	h, err = s.RunNow(ctx, JobSweepSessions)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))
	assert.Equal(t, int32(1), sw.calls.Load())

	_, err = s.RunNow(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestCronTriggersJobs(t *testing.T) {
	eng := startEngine(t)
	s, err := New(eng, "UTC", logx.Nop())
	require.NoError(t, err)
	sw := &countingSweeper{}
	require.NoError(t, s.Add(SweepSessionsJob(sw, "@every 1s", logx.Nop())))

	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	assert.False(t, s.Schedules()[0].Next.IsZero())
	assert.Eventually(t, func() bool { return sw.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
