package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/notify"
	"chat-client/internal/session"
)

// ChatSession is the part of a session the control API drives.
type ChatSession interface {
	Snapshot() session.Snapshot
	SendMessage(text string, replyTo *models.ReplyRef) error
	React(messageID, emoji string) error
	Keystroke()
	AddFriend(friendID string) error
	Connect()
	Reconnect()
	Disconnect()
	Resync(ctx context.Context) error
	LoadOlder(ctx context.Context) (int, bool, error)
}

var _ ChatSession = (*session.Session)(nil)

// NoticeSource lists the retained notices.
type NoticeSource interface {
	Recent() []notify.Notice
}

// ControlHandler exposes the user actions of every channel over HTTP.
type ControlHandler struct {
	sessions map[string]ChatSession
	notices  NoticeSource
	logger   zerolog.Logger
}

// NewControlHandler builds a ControlHandler. sessions is keyed by channel name.
func NewControlHandler(sessions map[string]ChatSession, notices NoticeSource, logger zerolog.Logger) *ControlHandler {
	return &ControlHandler{sessions: sessions, notices: notices, logger: logger}
}

// Register mounts the routes on r.
func (h *ControlHandler) Register(r gin.IRouter) {
	r.GET("/notices", h.ListNotices)

	ch := r.Group("/channels/:channel", h.resolve)
	ch.GET("/state", h.State)
	ch.POST("/messages", h.PostMessage)
	ch.POST("/reactions", h.PostReaction)
	ch.POST("/typing", h.PostTyping)
	ch.POST("/friends", h.PostFriend)
	ch.POST("/connect", h.lifecycle(ChatSession.Connect))
	ch.POST("/reconnect", h.lifecycle(ChatSession.Reconnect))
	ch.POST("/disconnect", h.lifecycle(ChatSession.Disconnect))
	ch.POST("/resync", h.Resync)
	ch.POST("/history/older", h.LoadOlder)
}

const sessionContextKey = "session"

func (h *ControlHandler) resolve(c *gin.Context) {
	s, ok := h.sessions[c.Param("channel")]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
		return
	}
	c.Set(sessionContextKey, s)
	c.Next()
}

func sessionFrom(c *gin.Context) ChatSession {
	return c.MustGet(sessionContextKey).(ChatSession)
}

// ListNotices returns the retained notices, oldest first.
func (h *ControlHandler) ListNotices(c *gin.Context) {
	notices := h.notices.Recent()
	if notices == nil {
		notices = []notify.Notice{}
	}
	c.JSON(http.StatusOK, gin.H{"notices": notices})
}

// State returns the channel snapshot.
func (h *ControlHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, sessionFrom(c).Snapshot())
}

type postMessageRequest struct {
	Message string           `json:"message" binding:"required"`
	ReplyTo *models.ReplyRef `json:"replyTo"`
}

// PostMessage sends a chat message. The message shows up in the state once
// the server echoes it.
func (h *ControlHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := sessionFrom(c).SendMessage(req.Message, req.ReplyTo); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type postReactionRequest struct {
	MessageID string `json:"messageId" binding:"required"`
	Emoji     string `json:"emoji" binding:"required"`
}

// PostReaction toggles the local user's reaction on a message.
func (h *ControlHandler) PostReaction(c *gin.Context) {
	var req postReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := sessionFrom(c).React(req.MessageID, req.Emoji); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// PostTyping records one keystroke.
func (h *ControlHandler) PostTyping(c *gin.Context) {
	sessionFrom(c).Keystroke()
	c.Status(http.StatusNoContent)
}

type postFriendRequest struct {
	FriendID string `json:"friendId" binding:"required"`
}

func (h *ControlHandler) PostFriend(c *gin.Context) {
	var req postFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := sessionFrom(c).AddFriend(req.FriendID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (h *ControlHandler) lifecycle(fn func(ChatSession)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessionFrom(c)
		fn(s)
		c.JSON(http.StatusAccepted, gin.H{"status": s.Snapshot().Status})
	}
}

// Resync reloads the message list from history.
func (h *ControlHandler) Resync(c *gin.Context) {
	s := sessionFrom(c)
	if err := s.Resync(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": len(s.Snapshot().Messages)})
}

// LoadOlder merges the next older history page into the list.
func (h *ControlHandler) LoadOlder(c *gin.Context) {
	added, more, err := sessionFrom(c).LoadOlder(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "hasMore": more})
}

func (h *ControlHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("channel", c.Param("channel")).Str("request_id", requestIDFromContext(c)).Msg("control action failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, session.ErrMessageTooLong),
		errors.Is(err, session.ErrInvalidReaction),
		errors.Is(err, session.ErrInvalidFriend):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrNoIdentity):
		return http.StatusConflict
	case errors.Is(err, session.ErrCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrNoHistory):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrSendFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
