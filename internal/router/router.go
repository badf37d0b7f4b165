// Package router decodes inbound frames and applies them to channel state.
package router

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/models"
	"chat-client/internal/notify"
	"chat-client/internal/observability"
	"chat-client/internal/protocol"
)

// Store is the state the router mutates.
type Store interface {
	AddMessage(m models.Message)
	ApplyReaction(messageID string, r models.Reaction) bool
	RemoveReaction(messageID, userID string) bool
	SetOnline(n int)
}

// TypingSink receives the remote peer's typing signals.
type TypingSink interface {
	Set(active bool)
}

// IdentitySource reports the local user.
type IdentitySource interface {
	Current() (models.Identity, bool)
}

// Deps are the collaborators of a Router. Resync and OnMessage are optional.
type Deps struct {
	Codec     protocol.Codec
	Store     Store
	Typing    TypingSink
	Identity  IdentitySource
	Notifier  notify.Notifier
	Resync    func(ctx context.Context) error
	OnMessage func(models.Message)
	Logger    zerolog.Logger
}

// Router handles the frames of one channel. It is not safe for concurrent
// use; frames must be routed from a single goroutine to keep their order.
type Router struct {
	Deps
	kind   string
	tracer trace.Tracer
}

func New(d Deps) *Router {
	kind := string(d.Codec.Channel())
	d.Logger = d.Logger.With().Str("channel", kind).Logger()
	return &Router{Deps: d, kind: kind, tracer: otel.Tracer("chat-client/router")}
}

// Route decodes one frame and dispatches it. Frames that cannot be decoded
// raise an alert and leave the state untouched.
func (r *Router) Route(ctx context.Context, data []byte) {
	ctx, span := r.tracer.Start(ctx, "ws.dispatch", trace.WithAttributes(attribute.String("ws.kind", r.kind)))
	defer span.End()

	ev, err := r.Codec.Decode(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		reason := "malformed_frame"
		text := "malformed frame received"
		switch errors.Cause(err) {
		case protocol.ErrMissingType:
			reason = "missing_type"
			text = "no type field in the event"
		case protocol.ErrMalformedPayload:
			reason = "malformed_payload"
			text = "malformed payload received"
		}
		observability.IncProtocolError(r.kind, reason)
		r.Logger.Error().Err(err).Msg("decode frame")
		r.Notifier.Notify(notify.LevelAlert, text)
		return
	}

	name := EventName(ev)
	span.SetAttributes(attribute.String("ws.event", name))
	observability.IncFrameReceived(r.kind, name)
	r.Dispatch(ctx, ev)
}

// Dispatch applies a decoded event.
func (r *Router) Dispatch(ctx context.Context, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.NewMessage:
		r.Store.AddMessage(e.Message)
		if r.OnMessage != nil {
			r.OnMessage(e.Message)
		}

	case protocol.ReactionSet:
		if !r.Store.ApplyReaction(e.MessageID, models.Reaction{Emoji: e.Emoji, UserID: e.UserID, UserName: e.UserName}) {
			r.Logger.Debug().Str("message_id", e.MessageID).Msg("reaction for untracked message dropped")
		}

	case protocol.ReactionRemoved:
		if !r.Store.RemoveReaction(e.MessageID, e.UserID) {
			r.Logger.Debug().Str("message_id", e.MessageID).Msg("reaction removal for untracked message dropped")
		}

	case protocol.TypingSignal:
		if r.Typing != nil {
			r.Typing.Set(e.Active)
		}

	case protocol.PresenceJoin:
		r.Store.SetOnline(e.Total)
		if r.isSelf(e.UserID) {
			r.Notifier.Notify(notify.LevelSuccess, fmt.Sprintf("You joined the chat, %d online", e.Total))
		} else {
			r.Notifier.Notify(notify.LevelInfo, fmt.Sprintf("%s joined the chat", displayName(e.UserName)))
		}

	case protocol.PresenceLeave:
		r.Store.SetOnline(e.Total)
		if r.isSelf(e.UserID) {
			r.Notifier.Notify(notify.LevelInfo, "You left the chat")
		} else {
			r.Notifier.Notify(notify.LevelInfo, fmt.Sprintf("%s left the chat", displayName(e.UserName)))
		}

	case protocol.MessagesPruned:
		r.Notifier.Notify(notify.LevelInfo, pruneSummary(e))
		if r.Resync == nil {
			return
		}
		if err := r.Resync(ctx); err != nil {
			r.Logger.Error().Err(err).Msg("resync after prune")
			r.Notifier.Notify(notify.LevelError, "Could not reload messages after cleanup")
		}

	case protocol.FriendRequestResult:
		name := displayName(e.FriendName)
		switch {
		case e.AlreadyExists:
			if r.isSelf(e.RequesterID) {
				r.Notifier.Notify(notify.LevelInfo, "already sent")
			}
		case r.isSelf(e.RequesterID):
			r.Notifier.Notify(notify.LevelSuccess, fmt.Sprintf("Request to %s sent", name))
		default:
			r.Notifier.Notify(notify.LevelSuccess, fmt.Sprintf("%s has sent you friend request. login to see it", name))
		}

	case protocol.Unknown:
		observability.IncProtocolError(r.kind, "unknown_type")
		r.Logger.Error().Str("type", e.Type).Msg("unsupported message type")
		r.Notifier.Notify(notify.LevelAlert, "unsupported message type "+e.Type)

	default:
		r.Logger.Error().Str("event", fmt.Sprintf("%T", ev)).Msg("event without handler")
	}
}

func (r *Router) isSelf(id string) bool {
	if r.Identity == nil {
		return false
	}
	me, ok := r.Identity.Current()
	return ok && me.Matches(id)
}

// EventName is the metric label of an event.
func EventName(ev protocol.Event) string {
	switch ev.(type) {
	case protocol.NewMessage:
		return "new_message"
	case protocol.ReactionSet, protocol.ReactionRemoved:
		return "reaction"
	case protocol.TypingSignal:
		return protocol.TypeTyping
	case protocol.PresenceJoin:
		return protocol.TypeUserJoined
	case protocol.PresenceLeave:
		return protocol.TypeUserLeft
	case protocol.MessagesPruned:
		return protocol.TypeMessagesPruned
	case protocol.FriendRequestResult:
		return protocol.TypeAddFriend
	default:
		return "unknown"
	}
}

func displayName(name string) string {
	if name == "" {
		return "user"
	}
	return name
}

func pruneSummary(e protocol.MessagesPruned) string {
	if e.Until.IsZero() {
		return fmt.Sprintf("%d old messages were cleaned up", e.Count)
	}
	return fmt.Sprintf("%d messages older than %s were cleaned up", e.Count, e.Until.UTC().Format("2006-01-02 15:04"))
}
