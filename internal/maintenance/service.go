// Package maintenance runs periodic housekeeping (idle connection eviction,
// conversation sweeps) on cron schedules. Cron only triggers; the work runs
// on the task engine so overlapping runs are skipped.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

var ErrUnknownJob = errors.New("unknown maintenance job")

type Engine interface {
	Submit(ctx context.Context, t engine.Task) (*engine.Handle, error)
}

// Job is one scheduled housekeeping task.
type Job struct {
	Name string
	// Schedule is a cron spec ("*/5 * * * *", optional seconds field) or a
	// descriptor ("@hourly", "@every 1m").
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type ScheduleInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	eng    Engine
	loc    *time.Location
	parser cron.Parser

	ctx     context.Context
	c       *cron.Cron
	jobs    []Job
	entries map[string]cron.EntryID
}

// New validates the timezone; empty means local time.
func New(eng Engine, timezone string, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("maintenance timezone: %w", err)
		}
		loc = l
	}
	return &Service{
		log:     log.With(logx.String("comp", "maintenance")),
		eng:     eng,
		loc:     loc,
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]cron.EntryID{},
	}, nil
}

// Add registers job, replacing one with the same name.
func (s *Service) Add(job Job) error {
	if strings.TrimSpace(job.Name) == "" || job.Run == nil {
		return errors.New("maintenance job needs a name and a func")
	}
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("job %s: schedule %q: %w", job.Name, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.Name == job.Name {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			break
		}
	}
	s.jobs = append(s.jobs, job)
	if s.c != nil {
		if id, ok := s.entries[job.Name]; ok {
			s.c.Remove(id)
		}
		return s.registerLocked(job)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, j := range s.jobs {
		if err := s.registerLocked(j); err != nil {
			s.log.Error("schedule register failed", logx.String("name", j.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop stops triggering and waits for a running cron callback, bounded
// by ctx. Jobs already on the engine are the engine's to drain.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entries = map[string]cron.EntryID{}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

func (s *Service) registerLocked(job Job) error {
	id, err := s.c.AddFunc(job.Schedule, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		if _, err := s.submit(ctx, job); err != nil && !errors.Is(err, engine.ErrOverlapSkip) {
			s.log.Warn("job enqueue failed", logx.String("name", job.Name), logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	s.entries[job.Name] = id
	return nil
}

func (s *Service) submit(ctx context.Context, job Job) (*engine.Handle, error) {
	return s.eng.Submit(ctx, engine.Task{
		Name:    "maintenance." + job.Name,
		Key:     "maintenance:" + job.Name,
		Overlap: engine.OverlapSkipIfRunning,
		Timeout: job.Timeout,
		Run:     job.Run,
	})
}

// RunNow submits a job immediately, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) (*engine.Handle, error) {
	s.mu.Lock()
	var (
		job   Job
		found bool
	)
	for _, j := range s.jobs {
		if j.Name == name {
			job, found = j, true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.submit(ctx, job)
}

// Schedules lists jobs with their next and previous trigger times. Times
// are zero while the service is stopped.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := ScheduleInfo{Name: j.Name, Spec: j.Schedule}
		if s.c != nil {
			if id, ok := s.entries[j.Name]; ok {
				e := s.c.Entry(id)
				info.Next, info.Prev = e.Next, e.Prev
			}
		}
		out = append(out, info)
	}
	return out
}
