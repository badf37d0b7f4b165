package store

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

func msg(id string, at time.Time) models.Message {
	return models.Message{ID: id, UserID: "u1", UserName: "alice", Message: "hi " + id, CreatedAt: at}
}

func TestAddMessageKeepsArrivalOrder(t *testing.T) {
	c := NewChat(zerolog.Nop())
	now := time.Now()

	c.AddMessage(msg("b", now))
	c.AddMessage(msg("a", now.Add(-time.Minute)))
	c.AddMessage(models.Message{Message: "no id"})

	got := c.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestAddMessageDoesNotDeduplicate(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))
	c.AddMessage(msg("m1", time.Now()))
	assert.Equal(t, 2, c.Len())
}

func TestReactionToggle(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))
	thumbs := models.Reaction{Emoji: "👍", UserID: "u", UserName: "U"}

	require.True(t, c.ApplyReaction("m1", thumbs))
	m, _ := c.Message("m1")
	assert.Equal(t, []models.Reaction{thumbs}, m.Reactions)

	require.True(t, c.ApplyReaction("m1", thumbs))
	m, _ = c.Message("m1")
	assert.Empty(t, m.Reactions)

	require.True(t, c.ApplyReaction("m1", thumbs))
	m, _ = c.Message("m1")
	assert.Equal(t, []models.Reaction{thumbs}, m.Reactions)
}

func TestReactionReplaceKeepsOne(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))

	c.ApplyReaction("m1", models.Reaction{Emoji: "👍", UserID: "u", UserName: "U"})
	c.ApplyReaction("m1", models.Reaction{Emoji: "Z", UserID: "other", UserName: "O"})
	c.ApplyReaction("m1", models.Reaction{Emoji: "😂", UserID: "u", UserName: "U"})

	m, _ := c.Message("m1")
	require.Len(t, m.Reactions, 2)
	emoji, ok := c.UserReaction("m1", "u")
	require.True(t, ok)
	assert.Equal(t, "😂", emoji)

	var mine int
	for _, r := range m.Reactions {
		if r.UserID == "u" {
			mine++
		}
	}
	assert.Equal(t, 1, mine)
}

func TestEmptyEmojiRemoves(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))
	c.ApplyReaction("m1", models.Reaction{Emoji: "👍", UserID: "u"})

	require.True(t, c.ApplyReaction("m1", models.Reaction{UserID: "u"}))
	_, ok := c.UserReaction("m1", "u")
	assert.False(t, ok)

	require.True(t, c.RemoveReaction("m1", "u"))
	m, _ := c.Message("m1")
	assert.Empty(t, m.Reactions)
}

func TestReactionOnUnknownMessageIsDropped(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))
	before := c.Messages()

	assert.False(t, c.ApplyReaction("gone", models.Reaction{Emoji: "👍", UserID: "u"}))
	assert.False(t, c.ApplyReaction("", models.Reaction{Emoji: "👍", UserID: "u"}))
	assert.False(t, c.ApplyReaction("m1", models.Reaction{Emoji: "👍"}))
	assert.Equal(t, before, c.Messages())
}

func TestSetMessagesReplacesList(t *testing.T) {
	c := NewChat(zerolog.Nop())
	now := time.Now()
	c.AddMessage(msg("old1", now))
	c.AddMessage(msg("old2", now))

	c.SetMessages([]models.Message{msg("r1", now), msg("r2", now)})

	got := c.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)
	_, ok := c.Message("old1")
	assert.False(t, ok)
	assert.True(t, c.ApplyReaction("r2", models.Reaction{Emoji: "👍", UserID: "u"}))
}

func TestMessagesReturnsCopies(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))
	c.ApplyReaction("m1", models.Reaction{Emoji: "👍", UserID: "u"})

	got := c.Messages()
	got[0].Reactions[0].Emoji = "changed"
	got[0].Message = "changed"

	m, _ := c.Message("m1")
	assert.Equal(t, "👍", m.Reactions[0].Emoji)
	assert.Equal(t, "hi m1", m.Message)
}

func TestClearAndOnline(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))
	c.SetOnline(4)
	assert.Equal(t, 4, c.Online())

	c.SetOnline(-1)
	assert.Equal(t, 0, c.Online())

	c.SetOnline(2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Online())
}

func TestSubscribe(t *testing.T) {
	c := NewChat(zerolog.Nop())
	var calls int
	cancel := c.Subscribe(func() { calls++ })

	c.AddMessage(msg("m1", time.Now()))
	c.ApplyReaction("m1", models.Reaction{Emoji: "👍", UserID: "u"})
	cancel()
	c.Clear()

	assert.Equal(t, 2, calls)
}

func TestConcurrentWrites(t *testing.T) {
	c := NewChat(zerolog.Nop())
	c.AddMessage(msg("m1", time.Now()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddMessage(msg("x", time.Now()))
			c.ApplyReaction("m1", models.Reaction{Emoji: "👍", UserID: "u"})
			_ = c.Messages()
		}()
	}
	wg.Wait()

	assert.Equal(t, 21, c.Len())
	// an even number of toggles leaves no reaction
	_, ok := c.UserReaction("m1", "u")
	assert.False(t, ok)
}

func TestSortChronological(t *testing.T) {
	now := time.Now()
	list := []models.Message{
		msg("c", now.Add(2*time.Second)),
		msg("a1", now),
		msg("b", now.Add(time.Second)),
		msg("a2", now),
	}

	SortChronological(list)

	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, ids)
}

func TestMergePrependsOlderRows(t *testing.T) {
	c := NewChat(zerolog.Nop())
	now := time.Now()
	c.SetMessages([]models.Message{msg("m3", now), msg("m4", now.Add(time.Second))})
	changes := 0
	c.Subscribe(func() { changes++ })

	added := c.Merge([]models.Message{msg("m1", now.Add(-2*time.Second)), msg("m2", now.Add(-time.Second)), msg("m3", now), {}})

	assert.Equal(t, 2, added)
	assert.Equal(t, 1, changes)
	got := c.Messages()
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids)
	assert.True(t, c.ApplyReaction("m1", models.Reaction{Emoji: "👍", UserID: "u2"}))

	assert.Equal(t, 0, c.Merge([]models.Message{msg("m2", now)}))
	assert.Equal(t, 2, changes)
}
