package app

import (
	"fmt"
	"strconv"
	"time"

	"postbot/internal/bot"
	rtsup "postbot/internal/runtime/supervisor"
)

// status backs the /status command.
func (a *App) status() []bot.StatusItem {
	snap := a.engine.Snapshot()
	items := []bot.StatusItem{
		{Name: "uptime", Value: time.Since(a.started).Truncate(time.Second).String()},
		{Name: "engine", Value: fmt.Sprintf("workers %d, in flight %d, queue %d/%d, dropped %d",
			snap.Workers, snap.InFlight, snap.QueueLen, snap.QueueCap, snap.Dropped)},
		{Name: "connections", Value: strconv.Itoa(a.accounts.Registry().Len())},
		{Name: "conversations", Value: strconv.Itoa(a.sessions.Len())},
		{Name: "live codes", Value: strconv.FormatBool(a.exec.LiveCodes())},
	}
	sups := []struct {
		name string
		sup  *rtsup.Supervisor
	}{
		{"app", a.sup},
		{"telegram", a.adapter.Supervisor()},
		{"router", a.router.Supervisor()},
		{"taskengine", a.engine.Supervisor()},
	}
	for _, s := range sups {
		if s.sup == nil {
			continue
		}
		c := s.sup.Counters()
		items = append(items, bot.StatusItem{
			Name:  "sup " + s.name,
			Value: fmt.Sprintf("active %d, restarts %d, panics %d", c.Active, c.Restarts, c.Panics),
		})
	}
	for _, j := range a.maint.Schedules() {
		if !j.Next.IsZero() {
			items = append(items, bot.StatusItem{Name: "next " + j.Name, Value: j.Next.Format(time.TimeOnly)})
		}
	}
	return items
}
