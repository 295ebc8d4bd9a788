package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/accounts"
	"postbot/internal/bot"
	"postbot/internal/broadcast"
	"postbot/internal/config"
	"postbot/internal/conversation"
	"postbot/internal/provisioning"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

func newReloadApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	set, err := config.Resolve(cfg)
	require.NoError(t, err)

	logs, log := logx.New(cfg.LogConfig())
	t.Cleanup(func() { _ = logs.Close() })

	accs := accounts.NewManager(nil, accounts.Options{DefaultAPIID: set.APIID, DefaultAPIHash: set.APIHash}, log)
	exec := provisioning.NewExecutor(nil, accs, nil, nil, nil, nil, log)
	exec.SetVerifyCode(set.VerifyCode)
	rt := router.New(log, nil, 1)
	rt.SetOwnerCheck(set.IsOwner)
	sessions := conversation.NewSessions()

	return &App{
		log:      log,
		logs:     logs,
		router:   rt,
		accounts: accs,
		disp:     broadcast.New(nil, accs, nil, nil, log),
		exec:     exec,
		sessions: sessions,
		bot:      bot.New(nil, nil, exec, sessions, nil, nil, log, bot.Options{}),
	}
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.MTProto.APIID = 1
	cfg.MTProto.APIHash = "hash"
	return cfg
}

func TestApplyHotSettings(t *testing.T) {
	prev := baseConfig()
	a := newReloadApp(t, prev)
	require.False(t, a.exec.LiveCodes())
	require.True(t, a.router.IsOwner(42))

	next := baseConfig()
	next.Provisioning.VerifyCode = true
	next.Telegram.OwnerUserIDs = []int64{7}
	a.apply(prev, next)

	assert.True(t, a.exec.LiveCodes())
	assert.True(t, a.router.IsOwner(7))
	assert.False(t, a.router.IsOwner(42))
}

func TestApplyIgnoresInvalidConfig(t *testing.T) {
	prev := baseConfig()
	prev.Telegram.OwnerUserIDs = []int64{7}
	a := newReloadApp(t, prev)

	next := baseConfig()
	next.Telegram.OwnerUserIDs = []int64{9}
	next.MTProto.APIHash = ""
	a.apply(prev, next)

	assert.True(t, a.router.IsOwner(7))
	assert.False(t, a.router.IsOwner(9))
}

func TestApplyWithoutChanges(t *testing.T) {
	prev := baseConfig()
	a := newReloadApp(t, prev)
	a.apply(prev, baseConfig())
	assert.False(t, a.exec.LiveCodes())
}
