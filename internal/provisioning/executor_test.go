package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/conversation"
	"postbot/internal/eventbus"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

const uid = int64(42)

type fixture struct {
	store    *recStore
	conn     *fakeConnector
	inbox    *inbox
	sessions *conversation.Sessions
	broker   *CodeBroker
	exec     *Executor
	bus      eventbus.Bus
}

func newFixture(t *testing.T, conn *fakeConnector) *fixture {
	t.Helper()
	bus := eventbus.New()
	eng := engine.New(engine.Config{Workers: 2}, logx.Nop(), bus)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	})
	f := &fixture{store: newRecStore(), conn: conn, inbox: &inbox{}, sessions: conversation.NewSessions(), bus: bus}
	f.broker = NewCodeBroker(f.sessions, f.inbox, time.Second)
	f.exec = NewExecutor(f.store, conn, eng, f.broker, f.inbox, bus, logx.Nop())
	return f
}

// step drives the machine the way the router does.
func (f *fixture) step(t *testing.T, input string) {
	t.Helper()
	m := conversation.Machine{LiveCodes: f.exec.LiveCodes()}
	st, effects := m.Step(f.sessions.Get(uid), input)
	f.sessions.Set(uid, st)
	require.NoError(t, f.exec.Apply(context.Background(), uid, effects))
}

func TestAuditRidesWithPersistingEffect(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeConnector{})

	f.sessions.Set(uid, conversation.AwaitingDestination{})
	f.step(t, "@news")

	calls, logs := f.store.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "destination", calls[0].op)
	assert.Equal(t, []storage.Note{{Action: storage.ActionGroupInfoEntered, Details: "@news"}}, calls[0].notes)
	assert.Empty(t, logs)
	assert.Equal(t, []string{conversation.TextDestinationAdded("@news")}, f.inbox.all())
}

func TestStandaloneAuditIsAppended(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeConnector{})

	_, effects := conversation.Machine{}.BeginPhone()
	require.NoError(t, f.exec.Apply(context.Background(), uid, effects))

	calls, logs := f.store.snapshot()
	assert.Empty(t, calls)
	require.Len(t, logs, 1)
	assert.Equal(t, storage.ActionRequestPhoneNumber, logs[0].Action)
	assert.Equal(t, uid, logs[0].UserID)
}

func TestDemoCodeCreatesTokenlessAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeConnector{})

	f.sessions.Set(uid, conversation.AwaitingPhone{})
	f.step(t, "+79123456789")
	assert.Equal(t, conversation.State(conversation.AwaitingCode{Phone: "+79123456789"}), f.sessions.Get(uid))
	f.step(t, "54321")

	calls, logs := f.store.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "account", calls[0].op)
	assert.Equal(t, "+79123456789|", calls[0].arg)
	assert.Equal(t, storage.ActionCodeEntered, calls[0].notes[0].Action)
	require.Len(t, logs, 1)
	assert.Equal(t, storage.ActionPhoneNumberEntered, logs[0].Action)
	assert.True(t, conversation.IsIdle(f.sessions.Get(uid)))
}

func TestAPITripleConnectsInBackground(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeConnector{})
	events, unsub := f.bus.Subscribe(16)
	defer unsub()

	f.sessions.Set(uid, conversation.AwaitingAPITriple{})
	f.step(t, "123456:abcdef123456abcdef123456abcdef12:+79123456789")

	// the login asks for a code through the chat
	require.Eventually(t, func() bool { return f.broker.waiting("+79123456789") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, conversation.State(conversation.AwaitingCode{Phone: "+79123456789", Live: true}), f.sessions.Get(uid))
	assert.True(t, f.inbox.has(conversation.TextCodeSent))

	f.step(t, "12345")
	require.Eventually(t, func() bool {
		calls, _ := f.store.snapshot()
		return len(calls) == 2
	}, time.Second, 5*time.Millisecond)

	calls, _ := f.store.snapshot()
	assert.Equal(t, "account", calls[0].op)
	assert.Equal(t, "+79123456789|", calls[0].arg, "account starts without a token")
	assert.Equal(t, storage.ActionAPIDataEntered, calls[0].notes[0].Action)
	assert.Equal(t, "api_id: 123456", calls[0].notes[0].Details)
	assert.Equal(t, "token", calls[1].op)
	assert.Equal(t, "token-+79123456789", calls[1].arg)
	assert.Equal(t, storage.ActionAccountConnected, calls[1].notes[0].Action)
	require.Eventually(t, func() bool { return f.inbox.has(conversation.TextAccountAdded) }, time.Second, 5*time.Millisecond)

	select {
	case ev := <-events:
		for ev.Type != eventbus.AccountConnected {
			ev = <-events
		}
		assert.Equal(t, "+79123456789", ev.Data.(AccountEvent).Phone)
	case <-time.After(time.Second):
		t.Fatal("no account.connected event")
	}
}

func TestConnectFailureLeavesTokenUnset(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeConnector{dialErr: assert.AnError})

	f.sessions.Set(uid, conversation.AwaitingAPITriple{})
	f.step(t, "123456:abcdef123456abcdef123456abcdef12:+79123456789")

	require.Eventually(t, func() bool {
		_, logs := f.store.snapshot()
		return len(logs) == 1
	}, time.Second, 5*time.Millisecond)
	calls, logs := f.store.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, storage.ActionAccountError, logs[0].Action)
	assert.Equal(t, "account: +79123456789, error: "+assert.AnError.Error(), logs[0].Details)
}

func TestLiveLoginWithDefaultPair(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeConnector{defaultAPI: true})
	f.exec.SetVerifyCode(true)

	f.sessions.Set(uid, conversation.AwaitingPhone{})
	f.step(t, "+79123456789")
	require.Eventually(t, func() bool { return f.broker.waiting("+79123456789") }, time.Second, 5*time.Millisecond)

	// already at the code step, so no second prompt
	n := 0
	for _, m := range f.inbox.all() {
		if m == conversation.TextCodeSent {
			n++
		}
	}
	assert.Equal(t, 1, n)

	f.step(t, "12345")
	require.Eventually(t, func() bool {
		calls, _ := f.store.snapshot()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)
	calls, logs := f.store.snapshot()
	assert.Equal(t, "+79123456789|token-+79123456789", calls[0].arg)
	assert.Equal(t, storage.ActionAccountConnected, calls[0].notes[0].Action)

	var actions []string
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []string{storage.ActionPhoneNumberEntered, storage.ActionCodeEntered}, actions)
}

func TestCodeWithoutLoginIsReported(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeConnector{defaultAPI: true})

	f.sessions.Set(uid, conversation.AwaitingCode{Phone: "+79123456789", Live: true})
	f.step(t, "12345")

	assert.Contains(t, f.inbox.all(), TextNoLoginWaiting)
	calls, _ := f.store.snapshot()
	assert.Empty(t, calls)
}
