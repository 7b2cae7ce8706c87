package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldone-ai/assistant/internal/log"
)

type fakeMessage struct {
	text     string
	markdown bool
}

type fakeDest struct {
	messages map[int]*fakeMessage
	order    []int
	nextID   int
	sends    int
	edits    int

	failSend func(text string, markdown bool) error
	failEdit func(id int, text string, markdown bool) error
}

func newFakeDest() *fakeDest {
	return &fakeDest{messages: make(map[int]*fakeMessage)}
}

func (d *fakeDest) Send(_ context.Context, text string, markdown bool) (int, error) {
	if d.failSend != nil {
		if err := d.failSend(text, markdown); err != nil {
			return 0, err
		}
	}
	d.nextID++
	d.sends++
	d.messages[d.nextID] = &fakeMessage{text: text, markdown: markdown}
	d.order = append(d.order, d.nextID)
	return d.nextID, nil
}

func (d *fakeDest) Edit(_ context.Context, id int, text string, markdown bool) error {
	if d.failEdit != nil {
		if err := d.failEdit(id, text, markdown); err != nil {
			return err
		}
	}
	m, ok := d.messages[id]
	if !ok {
		return errors.New("Bad Request: message to edit not found")
	}
	if m.text == text && m.markdown == markdown {
		return errors.New("Bad Request: message is not modified")
	}
	d.edits++
	m.text = text
	m.markdown = markdown
	return nil
}

func (d *fakeDest) texts() []string {
	out := make([]string, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.messages[id].text)
	}
	return out
}

func fastConfig() Config {
	return Config{MaxLength: 4000, EditInterval: time.Millisecond}
}

func TestSession_ShortAnswerSingleMessage(t *testing.T) {
	dest := newFakeDest()
	s := NewSession(dest, fastConfig(), log.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "Preheat the oven"))
	require.NoError(t, s.Push(ctx, " to 180 degrees."))
	require.NoError(t, s.Finalize(ctx))

	assert.Equal(t, 1, s.Parts())
	require.Len(t, dest.order, 1)
	got := dest.messages[dest.order[0]]
	assert.Equal(t, `Preheat the oven to 180 degrees\.`, got.text)
	assert.True(t, got.markdown)
	// Single-part answers carry no part numbering.
	assert.NotContains(t, got.text, "Part 1/")
}

func TestSession_ThrottleCoalescesTailEdits(t *testing.T) {
	dest := newFakeDest()
	// An hour-long interval: after the initial send, no tail edit can
	// pass the throttle until Finalize waits it out.
	s := NewSession(dest, Config{MaxLength: 4000, EditInterval: time.Hour}, log.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Push(ctx, "chunk one "))
	sendsAfterFirst := dest.sends
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Push(ctx, fmt.Sprintf("chunk %d ", i)))
	}

	assert.Equal(t, sendsAfterFirst, dest.sends, "throttled pushes must not send")
	assert.Zero(t, dest.edits, "throttled pushes must not edit")

	// Finalize with an expired context would block on Wait; instead
	// verify the accumulated text is intact for the eventual flush.
	assert.Contains(t, s.Text(), "chunk 19")
}

func TestSession_LongAnswerSplitsAndNumbers(t *testing.T) {
	dest := newFakeDest()
	s := NewSession(dest, fastConfig(), log.NewNop())
	ctx := context.Background()

	// ~9000 characters pushed in chunks: must end as 3 numbered parts.
	line := strings.Repeat("stir the pot gently ", 4) + "\n"
	for total := 0; total < 9000; total += len(line) {
		require.NoError(t, s.Push(ctx, line))
	}
	require.NoError(t, s.Finalize(ctx))

	assert.Equal(t, 3, s.Parts())
	texts := dest.texts()
	require.Len(t, texts, 3)
	for i, text := range texts {
		assert.True(t, strings.HasPrefix(text, fmt.Sprintf("Part %d/3\n\n", i+1)),
			"part %d is missing its header: %q", i+1, text[:30])
		assert.LessOrEqual(t, len([]rune(text)), 4000)
	}
}

func TestSession_FrozenPartsStayStable(t *testing.T) {
	dest := newFakeDest()
	s := NewSession(dest, Config{MaxLength: 200, EditInterval: time.Millisecond}, log.NewNop())
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		require.NoError(t, s.Push(ctx, strings.Repeat("abc ", 5)+"\n"))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.Finalize(ctx))

	require.Greater(t, s.Parts(), 1)
	// Every delivered part respects the ceiling.
	for _, text := range dest.texts() {
		assert.LessOrEqual(t, len([]rune(text)), 200)
	}
}

func TestSession_ParseErrorDegradesToPlainText(t *testing.T) {
	dest := newFakeDest()
	parseFailures := 0
	dest.failSend = func(_ string, markdown bool) error {
		if markdown {
			parseFailures++
			return errors.New("Bad Request: can't parse entities: character '_' is reserved")
		}
		return nil
	}
	s := NewSession(dest, fastConfig(), log.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "broken _markup_ here"))
	require.NoError(t, s.Finalize(ctx))

	require.Len(t, dest.order, 1)
	got := dest.messages[dest.order[0]]
	assert.False(t, got.markdown)
	// Degraded output is the raw text, not the escaped rendering.
	assert.Equal(t, "broken _markup_ here", got.text)
	assert.Equal(t, 1, parseFailures, "one markdown attempt before degrading")

	// Degrade is one-way: later pushes stay plain.
	require.NoError(t, s.Push(ctx, " and more."))
	require.NoError(t, s.Finalize(ctx))
	assert.False(t, dest.messages[dest.order[0]].markdown)
}

func TestSession_TooLongShrinksCapacity(t *testing.T) {
	dest := newFakeDest()
	const hardLimit = 100
	reject := func(text string, _ bool) error {
		if len([]rune(text)) > hardLimit {
			return errors.New("Bad Request: message is too long")
		}
		return nil
	}
	dest.failSend = reject
	dest.failEdit = func(_ int, text string, markdown bool) error { return reject(text, markdown) }

	s := NewSession(dest, Config{MaxLength: 300, EditInterval: time.Millisecond}, log.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, strings.Repeat("tomato soup gets long\n", 12)))
	require.NoError(t, s.Finalize(ctx))

	require.Greater(t, s.Parts(), 1)
	for _, text := range dest.texts() {
		assert.LessOrEqual(t, len([]rune(text)), hardLimit)
	}
}

func TestSession_DegradeFoldsSurplusMessages(t *testing.T) {
	dest := newFakeDest()
	rejectMarkdown := false
	dest.failEdit = func(_ int, _ string, markdown bool) error {
		if rejectMarkdown && markdown {
			return errors.New("Bad Request: can't parse entities: character '\\' is reserved")
		}
		return nil
	}
	s := NewSession(dest, Config{MaxLength: 120, EditInterval: time.Millisecond}, log.NewNop())
	ctx := context.Background()

	// 80 dots escape to 160 runes, spilling into a second message.
	dots := strings.Repeat(".", 80)
	require.NoError(t, s.Push(ctx, dots))
	require.Len(t, dest.order, 2)

	// Degrading shrinks the rendering back to one message; the second
	// one must not keep showing the stale escaped fragment.
	rejectMarkdown = true
	require.NoError(t, s.Finalize(ctx))

	first := dest.messages[dest.order[0]]
	second := dest.messages[dest.order[1]]
	assert.Equal(t, dots, first.text)
	assert.False(t, first.markdown)
	assert.NotContains(t, first.text, "Part ")
	assert.Equal(t, "…", second.text)
	assert.False(t, second.markdown)
}

func TestSession_NotModifiedAbsorbed(t *testing.T) {
	dest := newFakeDest()
	s := NewSession(dest, fastConfig(), log.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "stable text"))
	require.NoError(t, s.Finalize(ctx))
	// Finalizing again rewrites nothing and must not error.
	require.NoError(t, s.Finalize(ctx))
	assert.Equal(t, 1, dest.sends)
}

func TestSession_HardErrorFailsSessionWithNotice(t *testing.T) {
	dest := newFakeDest()
	calls := 0
	dest.failSend = func(_ string, markdown bool) error {
		calls++
		if markdown {
			return errors.New("Forbidden: bot was blocked by the user")
		}
		return nil // the plain-text failure notice goes through
	}
	s := NewSession(dest, fastConfig(), log.NewNop())
	ctx := context.Background()

	err := s.Push(ctx, "hello")
	require.Error(t, err)

	// The failure notice was posted in plain text.
	require.Len(t, dest.order, 1)
	assert.Equal(t, failureNotice, dest.messages[dest.order[0]].text)
	assert.False(t, dest.messages[dest.order[0]].markdown)

	// The session is dead for all further use.
	assert.ErrorIs(t, s.Push(ctx, "more"), ErrSessionFailed)
	assert.ErrorIs(t, s.Finalize(ctx), ErrSessionFailed)
}

func TestSession_EmptyFinalizeSendsNothing(t *testing.T) {
	dest := newFakeDest()
	s := NewSession(dest, fastConfig(), log.NewNop())

	require.NoError(t, s.Finalize(context.Background()))
	assert.Zero(t, dest.sends)
}
