package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-client/internal/history"
	"chat-client/internal/models"
)

// HistoryRepo reads message history for one channel straight from the
// backend's Postgres replica. It is read only.
type HistoryRepo struct {
	db      *sqlx.DB
	channel string
}

// NewHistoryRepo constructs HistoryRepo for channel ("public" or "private").
func NewHistoryRepo(db *sqlx.DB, channel string) *HistoryRepo {
	return &HistoryRepo{db: db, channel: channel}
}

type messageRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	UserName        string         `db:"user_name"`
	Message         string         `db:"message"`
	CreatedAt       time.Time      `db:"created_at"`
	ReplyID         sql.NullString `db:"reply_to_id"`
	ReplyMessage    sql.NullString `db:"reply_to_message"`
	ReplySenderID   sql.NullString `db:"reply_to_sender_id"`
	ReplySenderName sql.NullString `db:"reply_to_sender_name"`
}

type reactionRow struct {
	MessageID string `db:"message_id"`
	models.Reaction
}

const pageQuery = `SELECT m.id, m.user_id, m.user_name, m.message, m.created_at,
        r.id AS reply_to_id, r.message AS reply_to_message,
        r.user_id AS reply_to_sender_id, r.user_name AS reply_to_sender_name
    FROM messages m
    LEFT JOIN messages r ON r.id = m.reply_to_id
    WHERE m.channel = $1
    ORDER BY m.created_at DESC
    LIMIT $2 OFFSET $3`

const reactionsQuery = `SELECT message_id, emoji, user_id, user_name
    FROM message_reactions
    WHERE message_id = ANY($1)
    ORDER BY created_at ASC`

// Fetch returns the page at offset, newest first, like the HTTP endpoint.
func (r *HistoryRepo) Fetch(ctx context.Context, limit, offset int) (history.Page, error) {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, pageQuery, r.channel, limit+1, offset); err != nil {
		return history.Page{}, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var reactions []reactionRow
	if len(ids) > 0 {
		if err := r.db.SelectContext(ctx, &reactions, reactionsQuery, pq.Array(ids)); err != nil {
			return history.Page{}, err
		}
	}

	page := history.Page{Rows: toMessages(rows, reactions), HasMore: hasMore}
	if hasMore {
		page.NextOffset = offset + limit
	}
	return page, nil
}

func toMessages(rows []messageRow, reactions []reactionRow) []models.Message {
	byMessage := make(map[string][]models.Reaction, len(rows))
	for _, rr := range reactions {
		byMessage[rr.MessageID] = append(byMessage[rr.MessageID], rr.Reaction)
	}

	out := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		m := models.Message{
			ID:        row.ID,
			UserID:    row.UserID,
			UserName:  row.UserName,
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
			Reactions: byMessage[row.ID],
		}
		if row.ReplyID.Valid {
			m.ReplyTo = &models.ReplyRef{
				MessageID:  row.ReplyID.String,
				Message:    row.ReplyMessage.String,
				SenderID:   row.ReplySenderID.String,
				SenderName: row.ReplySenderName.String,
			}
		}
		out = append(out, m)
	}
	return out
}
