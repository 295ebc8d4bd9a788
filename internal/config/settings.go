package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "postbot/pkg/logx"
)

// ErrNoBotToken is fatal at startup.
var ErrNoBotToken = errors.New("telegram.token (or BOT_TOKEN) is required")

// Settings is Config with defaults applied and durations parsed.
type Settings struct {
	BotToken     string
	OwnerUserIDs []int64
	LogChatID    int64
	PollTimeout  time.Duration
	UpdateShards int

	StorageDriver string
	StoragePath   string
	StorageDSN    string
	BusyTimeout   time.Duration

	APIID       int
	APIHash     string
	CodeTimeout time.Duration
	DialTimeout time.Duration
	DialogPages int

	VerifyCode  bool
	MaxAccounts int

	SendTimeout time.Duration
	RunTimeout  time.Duration

	EngineWorkers   int
	EngineQueueSize int
	EngineTimeout   time.Duration
	EngineHistory   int

	SessionTTL time.Duration
	SessionMax int

	EvictSchedule string
	IdleTTL       time.Duration
	SweepSchedule string
	Timezone      string
}

// HasDefaultAPI reports whether a default API pair is configured.
func (s Settings) HasDefaultAPI() bool { return s.APIID != 0 && s.APIHash != "" }

// IsOwner reports whether userID may use owner-only commands.
func (s Settings) IsOwner(userID int64) bool {
	if len(s.OwnerUserIDs) == 0 {
		return true
	}
	for _, id := range s.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Resolve validates c and applies defaults.
func Resolve(c *Config) (Settings, error) {
	if c == nil {
		c = &Config{}
	}
	s := Settings{
		BotToken:      strings.TrimSpace(c.Telegram.Token),
		OwnerUserIDs:  append([]int64(nil), c.Telegram.OwnerUserIDs...),
		LogChatID:     c.Telegram.LogChatID,
		UpdateShards:  positive(c.Telegram.Workers, 8),
		StorageDriver: strings.ToLower(strings.TrimSpace(c.Storage.Driver)),
		StoragePath:   strings.TrimSpace(c.Storage.Path),
		StorageDSN:    strings.TrimSpace(c.Storage.DSN),
		APIID:         c.MTProto.APIID,
		APIHash:       strings.TrimSpace(c.MTProto.APIHash),
		DialogPages:   positive(c.MTProto.DialogPages, 10),
		VerifyCode:    c.Provisioning.VerifyCode,
		MaxAccounts:   positive(c.Provisioning.MaxAccounts, 10),

		EngineWorkers:   positive(c.TaskEngine.Workers, 4),
		EngineQueueSize: positive(c.TaskEngine.QueueSize, 256),
		EngineHistory:   positive(c.TaskEngine.HistorySize, 200),
		SessionMax:      positive(c.Sessions.Max, 10000),

		EvictSchedule: orDefault(c.Maintenance.EvictSchedule, "@every 1m"),
		SweepSchedule: orDefault(c.Maintenance.SweepSchedule, "@every 5m"),
		Timezone:      strings.TrimSpace(c.Maintenance.Timezone),
	}
	if s.StorageDriver == "" {
		s.StorageDriver = "sqlite"
	}
	if s.StorageDriver == "sqlite" && s.StoragePath == "" {
		s.StoragePath = "./postbot.db"
	}
	if (s.APIID == 0) != (s.APIHash == "") {
		return s, errors.New("mtproto.api_id and mtproto.api_hash must be set together")
	}

	durations := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout, 10 * time.Second, &s.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, 5 * time.Second, &s.BusyTimeout},
		{"mtproto.code_timeout", c.MTProto.CodeTimeout, 5 * time.Minute, &s.CodeTimeout},
		{"mtproto.dial_timeout", c.MTProto.DialTimeout, 30 * time.Second, &s.DialTimeout},
		{"broadcast.send_timeout", c.Broadcast.SendTimeout, 30 * time.Second, &s.SendTimeout},
		{"broadcast.run_timeout", c.Broadcast.RunTimeout, 0, &s.RunTimeout},
		{"task_engine.default_timeout", c.TaskEngine.DefaultTimeout, 0, &s.EngineTimeout},
		{"sessions.ttl", c.Sessions.TTL, 30 * time.Minute, &s.SessionTTL},
		{"maintenance.idle_ttl", c.Maintenance.IdleTTL, 10 * time.Minute, &s.IdleTTL},
	}
	for _, d := range durations {
		v, err := parseDuration(d.path, d.raw, d.def)
		if err != nil {
			return s, err
		}
		*d.dst = v
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return s, fmt.Errorf("maintenance.timezone: %w", err)
		}
	}
	// checked last so offline commands still get storage settings
	if s.BotToken == "" {
		return s, ErrNoBotToken
	}
	return s, nil
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// LogConfig maps the logging section onto the logger service.
func (c *Config) LogConfig() logx.Config {
	if c == nil {
		return logx.Config{Level: "info", Console: true}
	}
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Logging.Telegram.Enabled && c.Telegram.LogChatID != 0,
			ChatID:     c.Telegram.LogChatID,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		},
	}
}
