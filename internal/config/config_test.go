package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonConfig = `{
  "telegram": {"token": "123:abc", "owner_user_ids": [1, 2]},
  "storage": {"driver": "sqlite", "path": "./data.db"},
  "mtproto": {"api_id": 1234, "api_hash": "deadbeef", "code_timeout": "2m"},
  "provisioning": {"verify_code": true, "max_accounts": 3},
  "broadcast": {"send_timeout": "15s"},
  "logging": {"level": "debug", "console": true}
}`

const yamlConfig = `
telegram:
  token: "123:abc"
  owner_user_ids: [1, 2]
storage:
  driver: sqlite
  path: ./data.db
mtproto:
  api_id: 1234
  api_hash: deadbeef
  code_timeout: 2m
provisioning:
  verify_code: true
  max_accounts: 3
broadcast:
  send_timeout: 15s
logging:
  level: debug
  console: true
`

const tomlConfig = `
[telegram]
token = "123:abc"
owner_user_ids = [1, 2]

[storage]
driver = "sqlite"
path = "./data.db"

[mtproto]
api_id = 1234
api_hash = "deadbeef"
code_timeout = "2m"

[provisioning]
verify_code = true
max_accounts = 3

[broadcast]
send_timeout = "15s"

[logging]
level = "debug"
console = true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func newTestManager(path string, env map[string]string) *Manager {
	m := NewManager(path)
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestParseFormatsAgree(t *testing.T) {
	t.Parallel()

	var parsed []*Config
	for name, body := range map[string]string{"c.json": jsonConfig, "c.yaml": yamlConfig, "c.toml": tomlConfig} {
		cfg, err := newTestManager(writeFile(t, name, body), nil).Parse()
		require.NoError(t, err, name)
		parsed = append(parsed, cfg)
	}
	for _, cfg := range parsed[1:] {
		assert.Equal(t, parsed[0], cfg)
	}
	assert.Equal(t, []int64{1, 2}, parsed[0].Telegram.OwnerUserIDs)
	assert.Equal(t, 1234, parsed[0].MTProto.APIID)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := newTestManager(writeFile(t, "c.json", `{"telegram": {"tokn": "x"}}`), nil).Parse()
	require.Error(t, err)

	_, err = newTestManager(writeFile(t, "c.yaml", "webhooks: {}\n"), nil).Parse()
	require.Error(t, err)

	_, err = newTestManager(writeFile(t, "c.json", `{} {}`), nil).Parse()
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Parallel()

	m := newTestManager(writeFile(t, "c.json", jsonConfig), map[string]string{
		EnvBotToken: "999:zzz",
		EnvAPIID:    "42",
		EnvAPIHash:  "cafe",
		EnvDB:       "/var/lib/postbot.db",
	})
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "999:zzz", cfg.Telegram.Token)
	assert.Equal(t, 42, cfg.MTProto.APIID)
	assert.Equal(t, "cafe", cfg.MTProto.APIHash)
	assert.Equal(t, "/var/lib/postbot.db", cfg.Storage.Path)

	_, err = newTestManager("", map[string]string{EnvAPIID: "abc"}).Parse()
	require.Error(t, err)
}

func TestEnvOnlyPostgresDSN(t *testing.T) {
	t.Parallel()

	cfg := &Config{Storage: StorageConfig{Driver: "postgres"}}
	require.NoError(t, ApplyEnv(cfg, func(k string) string {
		if k == EnvDB {
			return "postgres://u@localhost/postbot"
		}
		return ""
	}))
	assert.Equal(t, "postgres://u@localhost/postbot", cfg.Storage.DSN)
	assert.Empty(t, cfg.Storage.Path)
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	_, err := Resolve(&Config{})
	require.ErrorIs(t, err, ErrNoBotToken)

	s, err := Resolve(&Config{Telegram: TelegramConfig{Token: "t"}})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.StorageDriver)
	assert.Equal(t, "./postbot.db", s.StoragePath)
	assert.Equal(t, 5*time.Minute, s.CodeTimeout)
	assert.Equal(t, 30*time.Second, s.SendTimeout)
	assert.Equal(t, time.Duration(0), s.RunTimeout)
	assert.Equal(t, "@every 1m", s.EvictSchedule)
	assert.False(t, s.HasDefaultAPI())
	assert.True(t, s.IsOwner(77), "no owners means everyone")

	_, err = Resolve(&Config{Telegram: TelegramConfig{Token: "t"}, MTProto: MTProtoConfig{APIID: 1}})
	require.Error(t, err)

	_, err = Resolve(&Config{Telegram: TelegramConfig{Token: "t"}, Broadcast: BroadcastConfig{SendTimeout: "soon"}})
	require.ErrorContains(t, err, "broadcast.send_timeout")
}

func TestResolveOwners(t *testing.T) {
	t.Parallel()

	s, err := Resolve(&Config{Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{5}}})
	require.NoError(t, err)
	assert.True(t, s.IsOwner(5))
	assert.False(t, s.IsOwner(6))
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	old := &Config{Telegram: TelegramConfig{Token: "a"}, Logging: LoggingConfig{Level: "info"}}
	assert.True(t, SummarizeChange(old, old).Empty())

	next := *old
	next.Logging.Level = "debug"
	next.Storage.Driver = "postgres"
	c := SummarizeChange(old, &next)
	assert.Equal(t, []string{"storage", "logging"}, c.Sections)
	assert.Equal(t, []string{"storage"}, c.RestartRequired)

	next.Telegram.Token = "b"
	c = SummarizeChange(old, &next)
	assert.Contains(t, c.RestartRequired, "telegram.token")
}

func TestLogConfigNeedsChat(t *testing.T) {
	t.Parallel()

	cfg := &Config{Logging: LoggingConfig{Telegram: LoggingTelegram{Enabled: true}}}
	assert.False(t, cfg.LogConfig().Telegram.Enabled)
	cfg.Telegram.LogChatID = -100123
	assert.True(t, cfg.LogConfig().Telegram.Enabled)
}

func TestWatchPublishesValidReloads(t *testing.T) {
	path := writeFile(t, "c.json", jsonConfig)
	m := newTestManager(path, nil)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		_, err := Resolve(cfg)
		return err
	})
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// an invalid file is rejected and the old config stays
	require.NoError(t, os.WriteFile(path, []byte(`{"telegram": {"token": ""}}`), 0o600))
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, "123:abc", m.Get().Telegram.Token)

	require.NoError(t, os.WriteFile(path, []byte(`{"telegram": {"token": "new"}}`), 0o600))
	select {
	case cfg := <-ch:
		assert.Equal(t, "new", cfg.Telegram.Token)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
	assert.Equal(t, "new", m.Get().Telegram.Token)
}
