package notify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenterKeepsMostRecent(t *testing.T) {
	c := NewCenter(2, zerolog.Nop())

	c.Notify(LevelInfo, "one")
	c.Notify(LevelError, "two")
	c.Scoped("public").Notify(LevelSuccess, "three")

	recent := c.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Text)
	assert.Equal(t, LevelError, recent[0].Level)
	assert.Equal(t, "three", recent[1].Text)
	assert.Equal(t, "public", recent[1].Channel)
	assert.NotEmpty(t, recent[1].ID)
}

func TestCenterSubscribe(t *testing.T) {
	c := NewCenter(0, zerolog.Nop())

	var got []Notice
	cancel := c.Subscribe(func(n Notice) { got = append(got, n) })

	c.Notify(LevelAlert, "unsupported message type")
	cancel()
	c.Notify(LevelInfo, "ignored")

	require.Len(t, got, 1)
	assert.Equal(t, LevelAlert, got[0].Level)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)

	r.Notify(LevelError, "not connected")
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, Notice{Level: LevelError, Text: "not connected"}, last)
	assert.Len(t, r.Notices(), 1)
}
