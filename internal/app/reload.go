package app

import (
	"context"
	"strings"

	"postbot/internal/config"
	logx "postbot/pkg/logx"
)

// reloadLoop applies hot-reloadable settings. Sections read once at
// startup are reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(last, next)
			last = next
		}
	}
}

func (a *App) apply(prev, next *config.Config) {
	change := config.SummarizeChange(prev, next)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	set, err := config.Resolve(next)
	if err != nil {
		// the manager validates before publishing
		a.log.Warn("reloaded config rejected", logx.Err(err))
		return
	}

	a.logs.Apply(next.LogConfig())
	a.router.SetOwnerCheck(set.IsOwner)
	a.accounts.SetSendTimeout(set.SendTimeout)
	a.disp.SetRunTimeout(set.RunTimeout)
	a.exec.SetVerifyCode(set.VerifyCode)
	a.bot.SetMaxAccounts(set.MaxAccounts)
	a.sessions.WithTTL(set.SessionTTL).WithMax(set.SessionMax)

	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config reloaded", fields...)
	if len(change.RestartRequired) > 0 {
		a.log.Warn("restart required for changes to take effect", logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}
}
