package config

import (
	"reflect"
	"strings"

	logx "postbot/pkg/logx"
)

// Change describes a reload. Attrs never carry secrets.
type Change struct {
	Sections []string
	Attrs    []logx.Field
	// RestartRequired lists changed sections that only apply on restart.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Sections that are read once at startup.
var coldSections = map[string]bool{
	"telegram.token": true,
	"storage":        true,
	"mtproto":        true,
	"task_engine":    true,
	"maintenance":    true,
}

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change
	mark := func(section string, attrs ...logx.Field) {
		c.Sections = append(c.Sections, section)
		c.Attrs = append(c.Attrs, attrs...)
		if coldSections[section] {
			c.RestartRequired = append(c.RestartRequired, section)
		}
	}

	if strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		mark("telegram.token")
	}
	if !reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		oldCfg.Telegram.LogChatID != newCfg.Telegram.LogChatID {
		mark("telegram",
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.log_chat_set", newCfg.Telegram.LogChatID != 0),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.MTProto != newCfg.MTProto {
		mark("mtproto",
			logx.Bool("mtproto.api_pair_set", newCfg.MTProto.APIID != 0 && newCfg.MTProto.APIHash != ""),
			logx.String("mtproto.code_timeout", newCfg.MTProto.CodeTimeout),
		)
	}
	if oldCfg.Provisioning != newCfg.Provisioning {
		mark("provisioning",
			logx.Bool("provisioning.verify_code", newCfg.Provisioning.VerifyCode),
			logx.Int("provisioning.max_accounts", newCfg.Provisioning.MaxAccounts),
		)
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		mark("broadcast",
			logx.String("broadcast.send_timeout", newCfg.Broadcast.SendTimeout),
			logx.String("broadcast.run_timeout", newCfg.Broadcast.RunTimeout),
		)
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		mark("task_engine",
			logx.Int("task_engine.workers", newCfg.TaskEngine.Workers),
			logx.Int("task_engine.queue_size", newCfg.TaskEngine.QueueSize),
		)
	}
	if oldCfg.Sessions != newCfg.Sessions {
		mark("sessions", logx.String("sessions.ttl", newCfg.Sessions.TTL))
	}
	if oldCfg.Maintenance != newCfg.Maintenance {
		mark("maintenance",
			logx.String("maintenance.evict_schedule", newCfg.Maintenance.EvictSchedule),
			logx.String("maintenance.sweep_schedule", newCfg.Maintenance.SweepSchedule),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	return c
}
