package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/eventbus"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

const user = int64(100)

func newTestDispatcher(t *testing.T, st *memStore, snd *fakeSender) (*Dispatcher, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	eng := engine.New(engine.Config{Workers: 2}, logx.Nop(), bus)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	})
	return New(st, snd, eng, bus, logx.Nop()), bus
}

func seeded(accounts []storage.Account, dests ...string) *memStore {
	st := &memStore{accounts: accounts, message: &storage.MessageDraft{ID: 1, UserID: user, Body: "hello"}}
	for i, d := range dests {
		st.dests = append(st.dests, storage.Destination{ID: int64(i + 1), UserID: user, Ident: d})
	}
	return st
}

func waitRun(t *testing.T, run *Run) (Summary, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sum, err := run.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return sum, err
}

func TestCheckOrderAndIdempotence(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	d, _ := newTestDispatcher(t, st, &fakeSender{})
	ctx := context.Background()

	err := d.Check(ctx, user)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrNoAccounts)

	st.accounts = []storage.Account{{ID: 1, UserID: user, Phone: "+10000000001"}}
	require.ErrorIs(t, d.Check(ctx, user), ErrNoDestinations)
	require.ErrorIs(t, d.Check(ctx, user), ErrNoDestinations)

	st.dests = []storage.Destination{{ID: 1, UserID: user, Ident: "@a"}}
	require.ErrorIs(t, d.Check(ctx, user), ErrNoMessage)

	st.message = &storage.MessageDraft{UserID: user, Body: "x"}
	require.NoError(t, d.Check(ctx, user))
	require.NoError(t, d.Check(ctx, user))
	assert.Empty(t, st.logs, "check never writes")
}

func TestZeroDestinationsNeverSends(t *testing.T) {
	t.Parallel()

	st := seeded([]storage.Account{{ID: 1, UserID: user, Phone: "+10000000001", SessionToken: "t"}})
	snd := &fakeSender{}
	d, _ := newTestDispatcher(t, st, snd)

	_, err := d.Start(context.Background(), user)
	require.ErrorIs(t, err, ErrNoDestinations)
	assert.Empty(t, snd.sendCalls())
	assert.Empty(t, st.actions(storage.ActionMessageSent))
	assert.Empty(t, st.actions(storage.ActionSendError))
	assert.Empty(t, st.actions(storage.ActionMailingStarted))
}

func TestTokenlessAccountsAreSkipped(t *testing.T) {
	t.Parallel()

	st := seeded([]storage.Account{
		{ID: 1, UserID: user, Phone: "+10000000001"},
		{ID: 2, UserID: user, Phone: "+10000000002", SessionToken: "tok"},
	}, "@a", "@b", "@c")
	snd := &fakeSender{}
	d, _ := newTestDispatcher(t, st, snd)

	run, err := d.Start(context.Background(), user)
	require.NoError(t, err)
	sum, err := waitRun(t, run)
	require.NoError(t, err)

	calls := snd.sendCalls()
	require.Len(t, calls, 3)
	for i, dest := range []string{"@a", "@b", "@c"} {
		assert.Equal(t, sendCall{phone: "+10000000002", dest: dest, text: "hello"}, calls[i])
	}
	assert.Equal(t, []string{"+10000000002"}, snd.acquired)
	assert.Equal(t, []string{"+10000000002"}, snd.released)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, sum.Sent)
	assert.Len(t, st.actions(storage.ActionMessageSent), 3)
	assert.Len(t, st.actions(storage.ActionMailingStarted), 1)
	assert.Len(t, st.actions(storage.ActionMailingFinished), 1)
}

func TestDestinationFailureIsIsolated(t *testing.T) {
	t.Parallel()

	st := seeded([]storage.Account{{ID: 1, UserID: user, Phone: "+10000000001", SessionToken: "tok"}}, "@d1", "@d2")
	snd := &fakeSender{sendErr: map[string]error{"@d1": errors.New("CHAT_WRITE_FORBIDDEN")}}
	d, _ := newTestDispatcher(t, st, snd)

	run, err := d.Start(context.Background(), user)
	require.NoError(t, err)
	sum, err := waitRun(t, run)
	require.NoError(t, err)

	assert.Len(t, snd.sendCalls(), 2)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Failed)

	sent := st.actions(storage.ActionMessageSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "account: +10000000001, group: @d2", sent[0].Details)

	failed := st.actions(storage.ActionSendError)
	require.Len(t, failed, 1)
	assert.Equal(t, "group: @d1, error: CHAT_WRITE_FORBIDDEN", failed[0].Details)
}

func TestAccountErrorContinuesWithNextAccount(t *testing.T) {
	t.Parallel()

	st := seeded([]storage.Account{
		{ID: 1, UserID: user, Phone: "+10000000001", SessionToken: "dead"},
		{ID: 2, UserID: user, Phone: "+10000000002", SessionToken: "tok"},
	}, "@a")
	snd := &fakeSender{acquireEr: map[string]error{"+10000000001": errors.New("AUTH_KEY_UNREGISTERED")}}
	d, _ := newTestDispatcher(t, st, snd)

	run, err := d.Start(context.Background(), user)
	require.NoError(t, err)
	sum, err := waitRun(t, run)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.AccountErrors)
	assert.Equal(t, 1, sum.Sent)
	errs := st.actions(storage.ActionAccountError)
	require.Len(t, errs, 1)
	assert.Equal(t, "account: +10000000001, error: AUTH_KEY_UNREGISTERED", errs[0].Details)
}

func TestSecondStartIsRejectedWhileRunning(t *testing.T) {
	t.Parallel()

	st := seeded([]storage.Account{{ID: 1, UserID: user, Phone: "+10000000001", SessionToken: "tok"}}, "@a")
	snd := &fakeSender{block: make(chan struct{})}
	d, _ := newTestDispatcher(t, st, snd)

	run, err := d.Start(context.Background(), user)
	require.NoError(t, err)
	_, err = d.Start(context.Background(), user)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(snd.block)
	_, err = waitRun(t, run)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, active := d.Active(user)
		return !active
	}, time.Second, 5*time.Millisecond)
	run, err = d.Start(context.Background(), user)
	require.NoError(t, err)
	_, err = waitRun(t, run)
	require.NoError(t, err)
}

func TestCancelStopsAtDestinationBoundary(t *testing.T) {
	t.Parallel()

	st := seeded([]storage.Account{{ID: 1, UserID: user, Phone: "+10000000001", SessionToken: "tok"}}, "@a", "@b", "@c")
	snd := &fakeSender{block: make(chan struct{})}
	d, _ := newTestDispatcher(t, st, snd)

	run, err := d.Start(context.Background(), user)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(snd.sendCalls()) == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, d.Cancel(user))
	sum, err := waitRun(t, run)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Cancelled)
	assert.Len(t, snd.sendCalls(), 1)
	assert.Len(t, st.actions(storage.ActionMailingCancelled), 1)
	assert.Empty(t, st.actions(storage.ActionMailingFinished))
	assert.False(t, d.Cancel(user))
}

func TestPanicIsContainedAsMailingError(t *testing.T) {
	t.Parallel()

	st := seeded([]storage.Account{{ID: 1, UserID: user, Phone: "+10000000001", SessionToken: "tok"}}, "@boom")
	snd := &fakeSender{panicOn: "@boom"}
	d, bus := newTestDispatcher(t, st, snd)
	events, unsub := bus.Subscribe(16)
	defer unsub()

	run, err := d.Start(context.Background(), user)
	require.NoError(t, err)
	_, err = waitRun(t, run)
	require.Error(t, err)

	errs := st.actions(storage.ActionMailingError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Details, "send exploded")

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != eventbus.BroadcastFinished {
				continue
			}
			res := ev.Data.(Result)
			assert.Equal(t, run.ID, res.Summary.RunID)
			assert.Error(t, res.Err)
			return
		case <-deadline:
			t.Fatal("no broadcast.finished event")
		}
	}
}

func TestCancelWhileQueuedReleasesUser(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	eng := engine.New(engine.Config{Workers: 1}, logx.Nop(), bus)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	unblock := make(chan struct{})
	busy, err := eng.Submit(context.Background(), engine.Task{Name: "busy", Run: func(context.Context) error {
		<-unblock
		return nil
	}})
	require.NoError(t, err)

	st := seeded([]storage.Account{{ID: 1, UserID: user, Phone: "+10000000001", SessionToken: "tok"}}, "@a")
	snd := &fakeSender{}
	d := New(st, snd, eng, bus, logx.Nop())

	run, err := d.Start(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, d.Cancel(user))
	close(unblock)
	require.NoError(t, busy.Wait(context.Background()))

	_, err = waitRun(t, run)
	require.ErrorIs(t, err, engine.ErrCancelled)

	require.Eventually(t, func() bool {
		_, active := d.Active(user)
		return !active
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, st.actions(storage.ActionMailingCancelled), 1)
	assert.Empty(t, snd.sendCalls())

	deadline := time.After(time.Second)
	for found := false; !found; {
		select {
		case ev := <-events:
			if ev.Type != eventbus.BroadcastFinished {
				continue
			}
			res := ev.Data.(Result)
			assert.Equal(t, run.ID, res.Summary.RunID)
			assert.True(t, res.Summary.Cancelled)
			found = true
		case <-deadline:
			t.Fatal("no broadcast.finished event")
		}
	}

	run, err = d.Start(context.Background(), user)
	require.NoError(t, err)
	sum, err := waitRun(t, run)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
}
