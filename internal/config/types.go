package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "5m"); empty means the default.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Storage      StorageConfig      `json:"storage"`
	MTProto      MTProtoConfig      `json:"mtproto"`
	Provisioning ProvisioningConfig `json:"provisioning"`
	Broadcast    BroadcastConfig    `json:"broadcast"`
	TaskEngine   TaskEngineConfig   `json:"task_engine"`
	Sessions     SessionsConfig     `json:"sessions"`
	Maintenance  MaintenanceConfig  `json:"maintenance"`
	Logging      LoggingConfig      `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs may use /stats; empty allows everyone.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives log lines when logging.telegram is enabled.
	LogChatID   int64  `json:"log_chat_id,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Workers is the number of per-user update shards.
	Workers int `json:"workers,omitempty"`
}

// StorageConfig selects the record store.
//
//	"storage": { "driver": "sqlite", "path": "./postbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MTProtoConfig holds the default API pair used when an account has none.
type MTProtoConfig struct {
	APIID       int    `json:"api_id,omitempty"`
	APIHash     string `json:"api_hash,omitempty"`
	CodeTimeout string `json:"code_timeout,omitempty"`
	DialTimeout string `json:"dial_timeout,omitempty"`
	// DialogPages bounds the dialog scan used to resolve numeric ids.
	DialogPages int `json:"dialog_pages,omitempty"`
}

type ProvisioningConfig struct {
	// VerifyCode runs a real login when a phone number is entered.
	VerifyCode  bool `json:"verify_code"`
	MaxAccounts int  `json:"max_accounts,omitempty"`
}

type BroadcastConfig struct {
	SendTimeout string `json:"send_timeout,omitempty"`
	RunTimeout  string `json:"run_timeout,omitempty"`
}

type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type SessionsConfig struct {
	TTL string `json:"ttl,omitempty"`
	Max int    `json:"max,omitempty"`
}

// MaintenanceConfig uses robfig/cron specs ("@every 1m", "*/5 * * * *").
type MaintenanceConfig struct {
	EvictSchedule string `json:"evict_schedule,omitempty"`
	IdleTTL       string `json:"idle_ttl,omitempty"`
	SweepSchedule string `json:"sweep_schedule,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
