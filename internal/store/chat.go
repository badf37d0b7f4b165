// Package store holds the ordered message list of one channel and the
// reactions attached to each message.
package store

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"chat-client/internal/models"
)

// Chat is the client side state of one channel. All methods are safe for
// concurrent use and never fail; inputs that cannot be applied are dropped.
type Chat struct {
	mu       sync.RWMutex
	messages []models.Message
	index    map[string]int
	online   int

	listeners map[int]func()
	nextID    int
	logger    zerolog.Logger
}

// NewChat returns an empty store.
func NewChat(logger zerolog.Logger) *Chat {
	return &Chat{
		index:     make(map[string]int),
		listeners: make(map[int]func()),
		logger:    logger,
	}
}

// SetMessages replaces the whole list, keeping the given order.
func (c *Chat) SetMessages(list []models.Message) {
	c.mu.Lock()
	c.messages = make([]models.Message, 0, len(list))
	for _, m := range list {
		c.messages = append(c.messages, m.Clone())
	}
	c.reindexLocked()
	fns := c.listenersLocked()
	c.mu.Unlock()
	notify(fns)
}

// Merge adds the rows of an older history page whose ids are not stored yet
// and re-sorts the list chronologically. It returns how many rows were added.
func (c *Chat) Merge(rows []models.Message) int {
	c.mu.Lock()
	added := 0
	for _, m := range rows {
		if m.ID == "" {
			continue
		}
		if _, ok := c.index[m.ID]; ok {
			continue
		}
		c.messages = append(c.messages, m.Clone())
		c.index[m.ID] = len(c.messages) - 1
		added++
	}
	if added == 0 {
		c.mu.Unlock()
		return 0
	}
	SortChronological(c.messages)
	c.reindexLocked()
	fns := c.listenersLocked()
	c.mu.Unlock()
	notify(fns)
	return added
}

// AddMessage appends m. Duplicates are not filtered.
func (c *Chat) AddMessage(m models.Message) {
	if m.ID == "" {
		c.logger.Warn().Str("user_id", m.UserID).Msg("message without id dropped")
		return
	}
	c.mu.Lock()
	c.messages = append(c.messages, m.Clone())
	if _, ok := c.index[m.ID]; !ok {
		c.index[m.ID] = len(c.messages) - 1
	}
	fns := c.listenersLocked()
	c.mu.Unlock()
	notify(fns)
}

// ApplyReaction applies a reaction event from r.UserID to messageID:
// the same emoji again removes it, another emoji replaces it, none adds it,
// and an empty emoji removes whatever the user had. It reports whether the
// message was found.
func (c *Chat) ApplyReaction(messageID string, r models.Reaction) bool {
	if messageID == "" || r.UserID == "" {
		c.logger.Warn().Str("message_id", messageID).Str("user_id", r.UserID).Msg("malformed reaction ignored")
		return false
	}

	c.mu.Lock()
	i, ok := c.index[messageID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	msg := &c.messages[i]
	pos := -1
	for j, existing := range msg.Reactions {
		if existing.UserID == r.UserID {
			pos = j
			break
		}
	}

	switch {
	case r.Emoji == "" || (pos >= 0 && msg.Reactions[pos].Emoji == r.Emoji):
		if pos >= 0 {
			msg.Reactions = removeAt(msg.Reactions, pos)
		}
	case pos >= 0:
		msg.Reactions[pos] = r
	default:
		msg.Reactions = append(msg.Reactions, r)
	}
	fns := c.listenersLocked()
	c.mu.Unlock()
	notify(fns)
	return true
}

// RemoveReaction drops the reaction of userID on messageID, if any.
func (c *Chat) RemoveReaction(messageID, userID string) bool {
	if messageID == "" || userID == "" {
		c.logger.Warn().Str("message_id", messageID).Str("user_id", userID).Msg("malformed reaction removal ignored")
		return false
	}
	return c.ApplyReaction(messageID, models.Reaction{UserID: userID})
}

// Clear empties the list and resets the online count.
func (c *Chat) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.index = make(map[string]int)
	c.online = 0
	fns := c.listenersLocked()
	c.mu.Unlock()
	notify(fns)
}

// Messages returns a deep copy of the list in display order.
func (c *Chat) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Message returns a copy of the first message with the given id.
func (c *Chat) Message(id string) (models.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return models.Message{}, false
	}
	return c.messages[i].Clone(), true
}

// UserReaction returns the emoji userID currently has on messageID.
func (c *Chat) UserReaction(messageID, userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[messageID]
	if !ok {
		return "", false
	}
	for _, r := range c.messages[i].Reactions {
		if r.UserID == userID {
			return r.Emoji, true
		}
	}
	return "", false
}

func (c *Chat) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// SetOnline stores the presence total reported by the server.
func (c *Chat) SetOnline(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	c.online = n
	fns := c.listenersLocked()
	c.mu.Unlock()
	notify(fns)
}

func (c *Chat) Online() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// Subscribe registers fn to run after every change.
func (c *Chat) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Chat) reindexLocked() {
	c.index = make(map[string]int, len(c.messages))
	for i, m := range c.messages {
		if _, ok := c.index[m.ID]; !ok {
			c.index[m.ID] = i
		}
	}
}

func (c *Chat) listenersLocked() []func() {
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func removeAt(list []models.Reaction, i int) []models.Reaction {
	out := make([]models.Reaction, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

// SortChronological orders list by CreatedAt, oldest first, keeping the
// relative order of equal timestamps.
func SortChronological(list []models.Message) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
