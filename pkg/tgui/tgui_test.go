package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataAndPayloadID(t *testing.T) {
	assert.Equal(t, "menu:main", Data("menu", "main", ""))
	d := DataID("dest", "off", 42)
	assert.Equal(t, "dest:off:42", d)

	id, ok := PayloadID("42")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	_, ok = PayloadID("x")
	assert.False(t, ok)

	_, err := DataChecked("menu", "x", strings.Repeat("a", 80))
	assert.ErrorIs(t, err, ErrCallbackDataTooLong)
}

func TestPaginateClamps(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	p := Paginate(items, 9, 2)
	assert.Equal(t, 2, p.Index)
	assert.Equal(t, []int{5}, p.Items)
	assert.True(t, p.HasPrev)
	assert.False(t, p.HasNext)
	assert.Equal(t, "Page 3/3", p.Label())

	empty := Paginate([]int(nil), 0, 2)
	assert.Equal(t, 1, empty.Pages)
	assert.Empty(t, empty.Items)
}

func TestBuilderEscapes(t *testing.T) {
	m := New().Title("Stats").KV("users", "<3").Line("a & b").Build()
	assert.Equal(t, "<b>Stats</b>\n• <b>users</b>: &lt;3\na &amp; b", m.Text)
	assert.Equal(t, "HTML", m.Opt.ParseMode)
	assert.Nil(t, m.Opt.ReplyMarkup)

	m = New().Line("x").Inline(NewInline().Row(Btn("Back", "menu:main"))).Build()
	assert.NotNil(t, m.Opt.ReplyMarkup)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello world", Preview("hello\n  world", 20))
	assert.Equal(t, "héll…", Preview("héllo", 4))
}

func TestJoinHSkipsBlankParts(t *testing.T) {
	got := JoinH(" ", "•", Code("-100<1>"), Esc(""))
	assert.Equal(t, H("• <code>-100&lt;1&gt;</code>"), got)
	assert.Equal(t, H(""), JoinH(", "))
}

func TestInlineIgnoresEmptyRows(t *testing.T) {
	kb := NewInline().Row().Row(Btn("a", "x:a")).Row()
	assert.Equal(t, 1, kb.Rows())
	require.Len(t, kb.Markup().InlineKeyboard, 1)
	assert.Equal(t, "x:a", kb.Markup().InlineKeyboard[0][0].Data)
}
