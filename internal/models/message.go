package models

import "time"

// Message represents a chat message as delivered by the backend.
type Message struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	UserName  string     `db:"user_name" json:"userName"`
	Message   string     `db:"message" json:"message"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	Reactions []Reaction `json:"reactions"`
	ReplyTo   *ReplyRef  `json:"replyTo,omitempty"`
}

// ReplyRef points at the message being quoted.
type ReplyRef struct {
	MessageID  string `json:"messageId"`
	Message    string `json:"message"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
}

// Reaction is a single user's emoji on a message.
type Reaction struct {
	Emoji    string `db:"emoji" json:"emoji"`
	UserID   string `db:"user_id" json:"userId"`
	UserName string `db:"user_name" json:"userName"`
}

// Clone returns a copy that shares no slices or pointers with m.
func (m Message) Clone() Message {
	out := m
	if m.Reactions != nil {
		out.Reactions = make([]Reaction, len(m.Reactions))
		copy(out.Reactions, m.Reactions)
	}
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	return out
}
