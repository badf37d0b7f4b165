package protocol

import (
	"encoding/json"
	"time"

	"chat-client/internal/models"
)

// Event is an inbound frame decoded into its typed form. The set of
// implementations is closed; Router switches over the concrete types.
type Event interface {
	isEvent()
}

// NewMessage carries a message broadcast by the server, including the
// sender's own messages echoed back.
type NewMessage struct {
	Message models.Message
}

// ReactionSet sets a user's reaction on a message.
type ReactionSet struct {
	MessageID string
	UserID    string
	UserName  string
	Emoji     string
}

// ReactionRemoved clears a user's reaction on a message. On the wire this is
// a reaction frame with an empty emoji.
type ReactionRemoved struct {
	MessageID string
	UserID    string
	UserName  string
}

// TypingSignal reports whether the remote peer is typing.
type TypingSignal struct {
	Active bool
}

// PresenceJoin is sent when a user connects to the channel.
type PresenceJoin struct {
	UserID   string
	UserName string
	Total    int
}

// PresenceLeave is sent when a user disconnects from the channel.
type PresenceLeave struct {
	UserID   string
	UserName string
	Total    int
}

// MessagesPruned means the server bulk-deleted messages older than Until.
type MessagesPruned struct {
	Count int
	Until time.Time
}

// FriendRequestResult is the outcome of an add_friend request, delivered to
// both the requester and the addressee.
type FriendRequestResult struct {
	FriendID      string
	FriendName    string
	RequesterID   string
	AlreadyExists bool
}

// Unknown is a well-formed frame whose type tag is not part of the protocol.
type Unknown struct {
	Type    string
	Payload json.RawMessage
}

func (NewMessage) isEvent()          {}
func (ReactionSet) isEvent()         {}
func (ReactionRemoved) isEvent()     {}
func (TypingSignal) isEvent()        {}
func (PresenceJoin) isEvent()        {}
func (PresenceLeave) isEvent()       {}
func (MessagesPruned) isEvent()      {}
func (FriendRequestResult) isEvent() {}
func (Unknown) isEvent()             {}

// Outbound is a frame the client sends.
type Outbound interface {
	isOutbound()
}

// SendMessage posts a new message to the channel.
type SendMessage struct {
	UserID   string           `json:"userId"`
	UserName string           `json:"userName"`
	Message  string           `json:"message"`
	ReplyTo  *models.ReplyRef `json:"replyTo,omitempty"`
}

// SendReaction sets or, with Remove, clears the user's reaction.
type SendReaction struct {
	MessageID string
	UserID    string
	UserName  string
	Emoji     string
	Remove    bool
}

// SendTyping starts or stops the local typing indicator on the peer side.
type SendTyping struct {
	Active bool
}

// SendFriendRequest asks the server to create a friend request.
type SendFriendRequest struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

func (SendMessage) isOutbound()       {}
func (SendReaction) isOutbound()      {}
func (SendTyping) isOutbound()        {}
func (SendFriendRequest) isOutbound() {}
