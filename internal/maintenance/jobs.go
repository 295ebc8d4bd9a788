package maintenance

import (
	"context"
	"time"

	logx "postbot/pkg/logx"
)

// IdleEvicter is implemented by *accounts.Registry.
type IdleEvicter interface {
	EvictIdle(maxIdle time.Duration) int
}

// Sweeper is implemented by *conversation.Sessions.
type Sweeper interface {
	Sweep() int
}

const (
	JobEvictIdle     = "registry.evict_idle"
	JobSweepSessions = "sessions.sweep"
)

// EvictIdleJob closes account connections unused for idleTTL.
func EvictIdleJob(reg IdleEvicter, schedule string, idleTTL time.Duration, log logx.Logger) Job {
	return Job{
		Name:     JobEvictIdle,
		Schedule: schedule,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			if n := reg.EvictIdle(idleTTL); n > 0 {
				log.Info("idle connections evicted", logx.Int("count", n), logx.Duration("idle_ttl", idleTTL))
			}
			return nil
		},
	}
}

// SweepSessionsJob drops expired conversation states.
func SweepSessionsJob(sessions Sweeper, schedule string, log logx.Logger) Job {
	return Job{
		Name:     JobSweepSessions,
		Schedule: schedule,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			if n := sessions.Sweep(); n > 0 {
				log.Debug("expired sessions swept", logx.Int("count", n))
			}
			return nil
		},
	}
}
