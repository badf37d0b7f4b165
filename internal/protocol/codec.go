package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"

	"chat-client/internal/models"
)

// Channel selects one logical real-time stream.
type Channel string

const (
	Public  Channel = "public"
	Private Channel = "private"
)

// Shared type tags.
const (
	TypeTyping         = "is_typing"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeMessagesPruned = "messages_pruned"
	TypeAddFriend      = "add_friend"
)

var (
	// ErrMissingType is returned for frames without a type tag.
	ErrMissingType = errors.New("frame has no type field")
	// ErrMalformedPayload is returned when the payload does not match its tag.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Frame is the wire envelope for every inbound and outbound event.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Codec translates between frames and typed events for one channel.
type Codec struct {
	channel Channel
}

// NewCodec returns the codec for channel.
func NewCodec(channel Channel) Codec {
	return Codec{channel: channel}
}

// Channel returns the channel the codec encodes for.
func (c Codec) Channel() Channel { return c.channel }

func (c Codec) tag(name string) string {
	return string(c.channel) + "_" + name
}

// SendMessageType is the tag of outbound chat messages.
func (c Codec) SendMessageType() string { return c.tag("send_message") }

// NewMessageType is the tag of inbound chat messages.
func (c Codec) NewMessageType() string { return c.tag("new_message") }

// ReactionType is the tag of reaction frames in both directions.
func (c Codec) ReactionType() string { return c.tag("reaction") }

type reactionPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Emoji     string `json:"emoji"`
}

type typingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type presencePayload struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	TotalCount int    `json:"totalCount"`
}

type prunePayload struct {
	PrunedCount int             `json:"prunedCount"`
	PrunedUntil json.RawMessage `json:"prunedUntilTimestamp"`
}

type friendResultPayload struct {
	FriendID      string `json:"friendId"`
	FriendName    string `json:"friendName"`
	RequesterID   string `json:"requesterId"`
	UserID        string `json:"userId"`
	AlreadyExists bool   `json:"alreadyExists"`
}

// Decode parses one inbound frame. A frame with an unrecognised tag decodes
// to Unknown without error.
func (c Codec) Decode(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	if f.Type == "" {
		return nil, ErrMissingType
	}

	switch f.Type {
	case c.NewMessageType():
		var msg models.Message
		if err := unmarshalPayload(f, &msg); err != nil {
			return nil, err
		}
		if msg.ID == "" {
			return nil, errors.Wrapf(ErrMalformedPayload, "%s: missing id", f.Type)
		}
		return NewMessage{Message: msg}, nil

	case c.ReactionType():
		var p reactionPayload
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" || p.UserID == "" {
			return nil, errors.Wrapf(ErrMalformedPayload, "%s: missing messageId or userId", f.Type)
		}
		if p.Emoji == "" {
			return ReactionRemoved{MessageID: p.MessageID, UserID: p.UserID, UserName: p.UserName}, nil
		}
		return ReactionSet{MessageID: p.MessageID, UserID: p.UserID, UserName: p.UserName, Emoji: p.Emoji}, nil

	case TypeTyping:
		var p typingPayload
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		return TypingSignal{Active: p.IsTyping}, nil

	case TypeUserJoined, TypeUserLeft:
		var p presencePayload
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		if f.Type == TypeUserJoined {
			return PresenceJoin{UserID: p.UserID, UserName: p.UserName, Total: p.TotalCount}, nil
		}
		return PresenceLeave{UserID: p.UserID, UserName: p.UserName, Total: p.TotalCount}, nil

	case TypeMessagesPruned:
		var p prunePayload
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		// Until only feeds the notice text; an odd format must not drop the event.
		return MessagesPruned{Count: p.PrunedCount, Until: models.ParseTimestamp(p.PrunedUntil)}, nil

	case TypeAddFriend:
		var p friendResultPayload
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		requester := p.RequesterID
		if requester == "" {
			requester = p.UserID
		}
		return FriendRequestResult{
			FriendID:      p.FriendID,
			FriendName:    p.FriendName,
			RequesterID:   requester,
			AlreadyExists: p.AlreadyExists,
		}, nil
	}

	return Unknown{Type: f.Type, Payload: f.Payload}, nil
}

func unmarshalPayload(f Frame, v any) error {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return errors.Wrapf(ErrMalformedPayload, "%s: empty payload", f.Type)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return errors.Wrapf(ErrMalformedPayload, "%s: %v", f.Type, err)
	}
	return nil
}

// Encode serialises an outbound event into a single text frame.
func (c Codec) Encode(out Outbound) ([]byte, error) {
	var (
		typ     string
		payload any
	)
	switch o := out.(type) {
	case SendMessage:
		typ, payload = c.SendMessageType(), o
	case SendReaction:
		emoji := o.Emoji
		if o.Remove {
			emoji = ""
		}
		typ, payload = c.ReactionType(), reactionPayload{
			MessageID: o.MessageID,
			UserID:    o.UserID,
			UserName:  o.UserName,
			Emoji:     emoji,
		}
	case SendTyping:
		typ, payload = TypeTyping, typingPayload{IsTyping: o.Active}
	case SendFriendRequest:
		typ, payload = TypeAddFriend, o
	default:
		return nil, errors.Errorf("unsupported outbound event %T", out)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", typ)
	}
	data, err := json.Marshal(Frame{Type: typ, Payload: raw})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", typ)
	}
	return data, nil
}
