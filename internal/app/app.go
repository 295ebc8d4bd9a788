// Package app wires postbot's components and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"postbot/internal/accounts"
	"postbot/internal/bot"
	"postbot/internal/broadcast"
	"postbot/internal/config"
	"postbot/internal/conversation"
	"postbot/internal/eventbus"
	"postbot/internal/maintenance"
	"postbot/internal/notifier"
	"postbot/internal/provisioning"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	kit "postbot/internal/transport"
	"postbot/internal/transport/mtproto"
	telegram "postbot/internal/transport/telegram/adapter"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgm *config.Manager
	set  config.Settings
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  *telegram.Adapter
	router   *router.Router
	engine   *engine.Service
	accounts *accounts.Manager
	disp     *broadcast.Dispatcher
	sessions *conversation.Sessions
	notif    *notifier.Service
	exec     *provisioning.Executor
	bot      *bot.Bot
	maint    *maintenance.Service

	started time.Time
	updates chan kit.Update
}

// New loads configuration and builds every component without starting
// any of them.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(cfg.LogConfig())
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	if !set.HasDefaultAPI() {
		log.Warn("API_ID/API_HASH not set; phone logins are limited to demo codes")
	}

	store, err := storage.Open(storageConfig(set), root)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	bus := eventbus.New()

	eng := engine.New(engine.Config{
		Workers:        set.EngineWorkers,
		QueueSize:      set.EngineQueueSize,
		DefaultTimeout: set.EngineTimeout,
		HistorySize:    set.EngineHistory,
	}, root, bus)

	dialer := mtproto.NewDialer(root)
	dialer.DialogPages = set.DialogPages
	accs := accounts.NewManager(dialer, accounts.Options{
		DefaultAPIID:   set.APIID,
		DefaultAPIHash: set.APIHash,
		SendTimeout:    set.SendTimeout,
		DialTimeout:    set.DialTimeout,
	}, root)

	disp := broadcast.New(store, accs, eng, bus, root)
	disp.SetRunTimeout(set.RunTimeout)

	sessions := conversation.NewSessions().WithTTL(set.SessionTTL).WithMax(set.SessionMax)

	ad, err := telegram.New(telegram.Config{Token: set.BotToken, PollTimeout: set.PollTimeout}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	notif := notifier.New(notifier.Config{}, ad, root, bus)

	broker := provisioning.NewCodeBroker(sessions, notif, set.CodeTimeout)
	exec := provisioning.NewExecutor(store, accs, eng, broker, notif, bus, root)
	exec.SetVerifyCode(set.VerifyCode)
	exec.LoginTimeout = set.DialTimeout + set.CodeTimeout

	rt := router.New(root, ad, set.UpdateShards)
	rt.SetOwnerCheck(set.IsOwner)

	a := &App{
		cfgm:     cfgm,
		set:      set,
		log:      log,
		logs:     logs,
		bus:      bus,
		store:    store,
		adapter:  ad,
		router:   rt,
		engine:   eng,
		accounts: accs,
		disp:     disp,
		sessions: sessions,
		notif:    notif,
		exec:     exec,
		updates:  make(chan kit.Update, 256),
	}

	a.bot = bot.New(store, disp, exec, sessions, notif, bus, root, bot.Options{
		MaxAccounts: set.MaxAccounts,
		Status:      a.status,
		Evict:       accs.Registry().Evict,
	})
	a.bot.Install(rt)

	maint, err := maintenance.New(eng, set.Timezone, root)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	mlog := root.With(logx.String("comp", "maintenance"))
	for _, job := range []maintenance.Job{
		maintenance.EvictIdleJob(accs.Registry(), set.EvictSchedule, set.IdleTTL, mlog),
		maintenance.SweepSessionsJob(sessions, set.SweepSchedule, mlog),
	} {
		if err := maint.Add(job); err != nil {
			_ = store.Close()
			_ = logs.Close()
			return nil, err
		}
	}
	a.maint = maint
	return a, nil
}

func storageConfig(s config.Settings) storage.Config {
	return storage.Config{
		Driver:      s.StorageDriver,
		Path:        s.StoragePath,
		DSN:         s.StorageDSN,
		BusyTimeout: s.BusyTimeout,
	}
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := config.Resolve(cfg)
		return err
	})

	a.engine.Start(runCtx)
	a.notif.Start(runCtx)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("start telegram adapter: %w", err)
	}
	a.logs.SetSender(func(ctx context.Context, chatID int64, text string) error {
		_, err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
		return err
	})
	a.maint.Start(runCtx)

	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sup.Go0("bot.reports", a.bot.Run)
	a.sup.Go0("router.menu", func(c context.Context) {
		if err := a.router.PublishMenu(c); err != nil {
			a.log.Warn("command menu not published", logx.Err(err))
		}
	})
	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	if a.cfgm.Path() != "" {
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("app started",
		logx.String("storage", a.set.StorageDriver),
		logx.Bool("live_codes", a.exec.LiveCodes()),
		logx.Int("owners", len(a.set.OwnerUserIDs)),
	)
	return nil
}

// logEvents mirrors bus traffic at debug level.
func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("maintenance", time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	// running broadcasts stop at the next destination and log mailing_cancelled
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("accounts", time.Second, func(context.Context) error { a.accounts.Close(); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
