package mtproto

import (
	"context"
	"testing"

	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want target
		ok   bool
	}{
		{"@mygroup", target{kind: peerUsername, username: "mygroup"}, true},
		{"mygroup", target{kind: peerUsername, username: "mygroup"}, true},
		{"https://t.me/mygroup", target{kind: peerUsername, username: "mygroup"}, true},
		{"t.me/mygroup/15", target{kind: peerUsername, username: "mygroup"}, true},
		{"-1001234567890", target{kind: peerChannel, id: 1234567890}, true},
		{"-4567", target{kind: peerChat, id: 4567}, true},
		{"777", target{kind: peerUser, id: 777}, true},
		{"0", target{}, false},
		{"", target{}, false},
		{"two words", target{}, false},
	}
	for _, tc := range cases {
		got, ok := parseTarget(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestFormatTargetRoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"-1001234567890", "-4567", "777", "@mygroup"} {
		tgt, ok := parseTarget(in)
		require.True(t, ok)
		assert.Equal(t, in, formatTarget(tgt))
	}
}

func TestMemorySessionToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	empty, err := newMemorySession("")
	require.NoError(t, err)
	_, err = empty.LoadSession(ctx)
	require.ErrorIs(t, err, session.ErrNotFound)
	assert.Empty(t, empty.Token())

	require.NoError(t, empty.StoreSession(ctx, []byte("blob")))
	tok := empty.Token()

	restored, err := newMemorySession(tok)
	require.NoError(t, err)
	b, err := restored.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), b)

	_, err = newMemorySession("%%%")
	require.Error(t, err)
}

func TestResolveBasicChatWithoutScan(t *testing.T) {
	t.Parallel()

	c := &conn{peers: map[target]tg.InputPeerClass{}}
	p, err := c.resolveNumeric(context.Background(), target{kind: peerChat, id: 55})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerChat{ChatID: 55}, p)
}

func TestRememberCachesAccessHashes(t *testing.T) {
	t.Parallel()

	c := &conn{peers: map[target]tg.InputPeerClass{}}
	c.remember(
		[]tg.ChatClass{&tg.Channel{ID: 10, AccessHash: 99}, &tg.Chat{ID: 11}},
		[]tg.UserClass{&tg.User{ID: 12, AccessHash: 77}},
	)
	p, err := c.resolveNumeric(context.Background(), target{kind: peerChannel, id: 10})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 10, AccessHash: 99}, p)

	p, err = c.resolveNumeric(context.Background(), target{kind: peerUser, id: 12})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerUser{UserID: 12, AccessHash: 77}, p)
}
