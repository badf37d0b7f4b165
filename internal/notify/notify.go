// Package notify keeps the in-memory toast notices shown to the user.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level classifies a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
	// LevelAlert marks protocol drift between client and server. It is meant
	// to be impossible to miss.
	LevelAlert Level = "alert"
)

// Notice is one toast.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Channel string    `json:"channel,omitempty"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(level Level, text string)
}

const defaultLimit = 100

// Center stores the most recent notices and logs every one of them.
type Center struct {
	mu      sync.RWMutex
	notices []Notice
	limit   int
	logger  zerolog.Logger
	now     func() time.Time
	subs    map[int]func(Notice)
	nextSub int
}

// NewCenter creates a Center retaining up to limit notices (100 if limit <= 0).
func NewCenter(limit int, logger zerolog.Logger) *Center {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Center{
		limit:  limit,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]func(Notice)),
	}
}

// Notify records a notice without a channel.
func (c *Center) Notify(level Level, text string) {
	c.push("", level, text)
}

// Scoped returns a Notifier that tags notices with channel.
func (c *Center) Scoped(channel string) Notifier {
	return scoped{center: c, channel: channel}
}

// Subscribe registers fn for every new notice. fn runs synchronously on the
// goroutine that raised the notice.
func (c *Center) Subscribe(fn func(Notice)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Recent returns the retained notices, oldest first.
func (c *Center) Recent() []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

func (c *Center) push(channel string, level Level, text string) {
	n := Notice{
		ID:      uuid.NewString(),
		Level:   level,
		Channel: channel,
		Text:    text,
		At:      c.now(),
	}

	c.mu.Lock()
	c.notices = append(c.notices, n)
	if len(c.notices) > c.limit {
		copy(c.notices, c.notices[len(c.notices)-c.limit:])
		c.notices = c.notices[:c.limit]
	}
	subs := make([]func(Notice), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.log(n)
	for _, fn := range subs {
		fn(n)
	}
}

func (c *Center) log(n Notice) {
	var ev *zerolog.Event
	switch n.Level {
	case LevelError:
		ev = c.logger.Warn()
	case LevelAlert:
		ev = c.logger.Error().Bool("alert", true)
	default:
		ev = c.logger.Info()
	}
	if n.Channel != "" {
		ev = ev.Str("channel", n.Channel)
	}
	ev.Str("level", string(n.Level)).Msg(n.Text)
}

type scoped struct {
	center  *Center
	channel string
}

func (s scoped) Notify(level Level, text string) {
	s.center.push(s.channel, level, text)
}

// Recorder is a Notifier that only remembers notices. Useful where no Center
// is wired.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(level Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Level: level, Text: text})
}

// Notices returns what was recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
