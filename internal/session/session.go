// Package session wires the connection, routing, state and typing pieces of
// one chat channel together and exposes the user actions on it.
package session

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"chat-client/internal/history"
	"chat-client/internal/models"
	"chat-client/internal/notify"
	"chat-client/internal/protocol"
	"chat-client/internal/router"
	"chat-client/internal/store"
	"chat-client/internal/typing"
	"chat-client/internal/ws"
)

const (
	DefaultFriendCooldown = 2 * time.Minute
	MaxMessageLength      = 500
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrNoIdentity      = errors.New("no local identity")
	ErrEmptyMessage    = errors.New("empty message")
	ErrMessageTooLong  = errors.New("message too long")
	ErrSendFailed      = errors.New("send failed")
	ErrCooldown        = errors.New("friend request cooldown")
	ErrInvalidFriend   = errors.New("invalid friend id")
	ErrNoHistory       = errors.New("no history source")
	ErrUnknownMessage  = errors.New("unknown message")
	ErrInvalidReaction = protocol.ErrInvalidReaction
)

// IdentitySource reports the local user.
type IdentitySource interface {
	Current() (models.Identity, bool)
}

// Config describes one channel.
type Config struct {
	Channel        protocol.Channel
	BaseURL        string
	HistoryLimit   int
	FriendCooldown time.Duration
	Typing         typing.Config
	TypingTTL      time.Duration
}

// Deps are the collaborators shared by the sessions of a process.
type Deps struct {
	Dialer   ws.Dialer
	Identity IdentitySource
	History  history.Source
	Notices  *notify.Center
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// Session is one channel: a connection manager, its router and its state.
type Session struct {
	cfg      Config
	text     texts
	codec    protocol.Codec
	identity IdentitySource
	history  history.Source
	notifier notify.Notifier
	clock    clock.Clock
	logger   zerolog.Logger

	manager   *ws.Manager
	store     *store.Chat
	router    *router.Router
	debouncer *typing.Debouncer
	indicator *typing.Indicator

	mu          sync.Mutex
	cooldowns   map[string]time.Time
	cursor      int
	hasMore     bool
	unsubscribe func()
}

// New builds a disconnected session.
func New(cfg Config, deps Deps) *Session {
	if cfg.FriendCooldown <= 0 {
		cfg.FriendCooldown = DefaultFriendCooldown
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = history.DefaultLimit
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	notices := deps.Notices
	if notices == nil {
		notices = notify.NewCenter(0, deps.Logger)
	}

	kind := string(cfg.Channel)
	text := textsFor(cfg.Channel)
	if cfg.Typing.NotConnected == "" {
		cfg.Typing.NotConnected = text.notConnected
	}
	logger := deps.Logger.With().Str("channel", kind).Logger()
	codec := protocol.NewCodec(cfg.Channel)

	s := &Session{
		cfg:       cfg,
		text:      text,
		codec:     codec,
		identity:  deps.Identity,
		history:   deps.History,
		notifier:  notices.Scoped(kind),
		clock:     clk,
		logger:    logger,
		store:     store.NewChat(logger),
		indicator: typing.NewIndicator(clk, cfg.TypingTTL),
		cooldowns: make(map[string]time.Time),
		hasMore:   true,
	}
	s.manager = ws.NewManager(kind, deps.Dialer, deps.Identity, deps.Logger)
	s.debouncer = typing.NewDebouncer(cfg.Typing, clk, s.manager, codec, s.notifier, logger)
	s.router = router.New(router.Deps{
		Codec:    codec,
		Store:    s.store,
		Typing:   s.indicator,
		Identity: deps.Identity,
		Notifier: s.notifier,
		Resync:   s.Resync,
		Logger:   deps.Logger,
	})
	s.unsubscribe = s.manager.Subscribe(s.onStatus)
	return s
}

func (s *Session) Channel() protocol.Channel { return s.cfg.Channel }
func (s *Session) Manager() *ws.Manager       { return s.manager }
func (s *Session) Store() *store.Chat         { return s.store }
func (s *Session) Typing() *typing.Indicator  { return s.indicator }

// OnMessage registers a hook run for every new message, e.g. to scroll.
// Call it before Run.
func (s *Session) OnMessage(fn func(models.Message)) { s.router.OnMessage = fn }

// Run consumes inbound frames until ctx is done or the session is closed.
// It is the only goroutine that dispatches frames.
func (s *Session) Run(ctx context.Context) error {
	frames := s.manager.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.manager.Done():
			return nil
		case in := <-frames:
			s.router.Route(ctx, in.Data)
		}
	}
}

// Connect opens the channel's socket.
func (s *Session) Connect() {
	s.manager.Connect(s.cfg.BaseURL)
}

// EnsureConnected connects unless connected, connecting, or disconnected on
// purpose. It reports whether a connect was issued.
func (s *Session) EnsureConnected() bool {
	if s.manager.Status() != ws.Disconnected || s.manager.Exhausted() {
		return false
	}
	s.manager.Connect(s.cfg.BaseURL)
	return true
}

func (s *Session) Reconnect()  { s.manager.Reconnect() }
func (s *Session) Disconnect() { s.manager.Disconnect() }

// SendMessage sends text to the channel. The message is not added locally;
// it appears when the server echoes it back.
func (s *Session) SendMessage(text string, replyTo *models.ReplyRef) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if len([]rune(text)) > MaxMessageLength {
		return ErrMessageTooLong
	}
	me, err := s.me()
	if err != nil {
		return err
	}
	if !s.manager.Connected() {
		s.notifier.Notify(notify.LevelError, s.text.notConnected)
		return ErrNotConnected
	}

	frame, err := s.codec.Encode(protocol.SendMessage{
		UserID:   me.UserID,
		UserName: me.UserName,
		Message:  text,
		ReplyTo:  replyTo,
	})
	if err != nil {
		return err
	}
	if !s.manager.Send(frame) {
		s.notifier.Notify(notify.LevelError, s.text.lost)
		return ErrSendFailed
	}
	if s.text.sent != "" {
		s.notifier.Notify(notify.LevelSuccess, s.text.sent)
	}
	return nil
}

// React sends emoji on messageID. Reacting with the emoji the user already
// has removes it.
func (s *Session) React(messageID, emoji string) error {
	if err := protocol.ValidateReaction(emoji); err != nil {
		return err
	}
	if messageID == "" {
		return ErrUnknownMessage
	}
	me, err := s.me()
	if err != nil {
		return err
	}
	if !s.manager.Connected() {
		s.notifier.Notify(notify.LevelError, s.text.notConnected)
		return ErrNotConnected
	}

	current, has := s.store.UserReaction(messageID, me.UserID)
	remove := has && current == emoji
	frame, err := s.codec.Encode(protocol.SendReaction{
		MessageID: messageID,
		UserID:    me.UserID,
		UserName:  me.UserName,
		Emoji:     emoji,
		Remove:    remove,
	})
	if err != nil {
		return err
	}
	if !s.manager.Send(frame) {
		s.notifier.Notify(notify.LevelError, s.text.lost)
		return ErrSendFailed
	}
	if remove {
		s.notifier.Notify(notify.LevelSuccess, "Reaction removed")
	} else {
		s.notifier.Notify(notify.LevelSuccess, fmt.Sprintf("Reacted with %s!", emoji))
	}
	return nil
}

// Keystroke feeds the typing debouncer.
func (s *Session) Keystroke() { s.debouncer.Keystroke() }

// AddFriend sends a friend request. Requests to the same friend are limited
// to one per cooldown period.
func (s *Session) AddFriend(friendID string) error {
	friendID = strings.TrimSpace(friendID)
	if friendID == "" {
		return ErrInvalidFriend
	}
	me, err := s.me()
	if err != nil {
		return err
	}
	if me.Matches(friendID) {
		return ErrInvalidFriend
	}
	if !s.manager.Connected() {
		s.notifier.Notify(notify.LevelError, s.text.notConnected)
		return ErrNotConnected
	}

	now := s.clock.Now()
	s.mu.Lock()
	last, seen := s.cooldowns[friendID]
	if seen {
		if wait := s.cfg.FriendCooldown - now.Sub(last); wait > 0 {
			s.mu.Unlock()
			remaining := int(math.Ceil(wait.Seconds()))
			s.notifier.Notify(notify.LevelAlert, fmt.Sprintf("You can send a friend request to this user again in %d seconds.", remaining))
			return ErrCooldown
		}
	}
	s.cooldowns[friendID] = now
	s.mu.Unlock()

	requester := me.GoogleID
	if requester == "" {
		requester = me.UserID
	}
	frame, err := s.codec.Encode(protocol.SendFriendRequest{UserID: requester, FriendID: friendID})
	if err != nil {
		return err
	}
	if !s.manager.Send(frame) {
		s.notifier.Notify(notify.LevelError, s.text.lost)
		return ErrSendFailed
	}
	return nil
}

// Resync replaces the message list with the most recent history page.
func (s *Session) Resync(ctx context.Context) error {
	if s.history == nil {
		return ErrNoHistory
	}
	page, err := history.LoadPage(ctx, s.history, s.cfg.HistoryLimit, 0)
	if err != nil {
		return errors.Wrap(err, "resync")
	}
	s.store.SetMessages(page.Rows)
	s.advance(0, page)
	s.logger.Debug().Int("rows", len(page.Rows)).Msg("message list resynced")
	return nil
}

// LoadOlder fetches the next older history page and merges it into the list.
// It returns how many messages were added and whether more pages remain.
func (s *Session) LoadOlder(ctx context.Context) (int, bool, error) {
	if s.history == nil {
		return 0, false, ErrNoHistory
	}
	s.mu.Lock()
	offset, more := s.cursor, s.hasMore
	s.mu.Unlock()
	if !more {
		return 0, false, nil
	}

	page, err := history.LoadPage(ctx, s.history, s.cfg.HistoryLimit, offset)
	if err != nil {
		return 0, true, errors.Wrap(err, "load older")
	}
	added := s.store.Merge(page.Rows)
	more = s.advance(offset, page)
	s.logger.Debug().Int("offset", offset).Int("added", added).Bool("has_more", more).Msg("older history loaded")
	return added, more, nil
}

// advance moves the history cursor past page, fetched at offset.
func (s *Session) advance(offset int, page history.Page) bool {
	next := page.NextOffset
	if next <= offset {
		next = offset + len(page.Rows)
	}
	more := page.HasMore && len(page.Rows) > 0
	s.mu.Lock()
	s.cursor = next
	s.hasMore = more
	s.mu.Unlock()
	return more
}

// Leave tears down the channel state but keeps the session usable.
func (s *Session) Leave() {
	s.debouncer.Stop()
	s.indicator.Reset()
	s.manager.Disconnect()
	s.store.Clear()
	s.mu.Lock()
	s.cursor = 0
	s.hasMore = true
	s.mu.Unlock()
}

// Close stops the session for good.
func (s *Session) Close() {
	s.debouncer.Stop()
	s.indicator.Reset()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.manager.Close()
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Channel    string           `json:"channel"`
	Status     string           `json:"status"`
	Target     string           `json:"target,omitempty"`
	Online     int              `json:"online"`
	PeerTyping bool             `json:"peerTyping"`
	HasMore    bool             `json:"hasMore"`
	Messages   []models.Message `json:"messages"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Channel:    string(s.cfg.Channel),
		Status:     s.manager.Status().String(),
		Target:     s.manager.Target(),
		Online:     s.store.Online(),
		PeerTyping: s.indicator.Active(),
		HasMore:    s.moreHistory(),
		Messages:   s.store.Messages(),
	}
}

func (s *Session) moreHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history != nil && s.hasMore
}

func (s *Session) me() (models.Identity, error) {
	if s.identity == nil {
		return models.Identity{}, ErrNoIdentity
	}
	me, ok := s.identity.Current()
	if !ok || !me.Valid() {
		s.notifier.Notify(notify.LevelError, "Sign in first to chat")
		return models.Identity{}, ErrNoIdentity
	}
	return me, nil
}

func (s *Session) onStatus(prev, next ws.Status) {
	switch {
	case next == ws.Connected:
		s.notifier.Notify(notify.LevelSuccess, s.text.connected)
	case next == ws.Disconnected && prev == ws.Connected:
		s.debouncer.Stop()
		s.indicator.Reset()
		s.notifier.Notify(notify.LevelError, s.text.disconnected)
	}
}

type texts struct {
	connected    string
	disconnected string
	notConnected string
	sent         string
	lost         string
}

func textsFor(ch protocol.Channel) texts {
	if ch == protocol.Private {
		return texts{
			connected:    "Connected to Private WebSocket",
			disconnected: "Disconnected from Private WebSocket",
			notConnected: "Not connected to private chat",
			lost:         "Message could not be sent",
		}
	}
	return texts{
		connected:    "Connected to WebSocket",
		disconnected: "Disconnected from WebSocket",
		notConnected: typing.DefaultNotConnected,
		sent:         "Message sent to the fun zone!",
		lost:         "Oops! Message got lost in space!",
	}
}
