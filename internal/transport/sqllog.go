package transport

import (
	"context"
	"database/sql"
	"time"

	"github.com/hearthside/gigi-learning/internal/store"
)

// SQLMessageLog reads the messaging tables the agent runtime writes. It is
// strictly read-only; this pipeline never mutates message history.
type SQLMessageLog struct {
	db *sql.DB
}

func NewSQLMessageLog(db *sql.DB) *SQLMessageLog { return &SQLMessageLog{db: db} }

func (l *SQLMessageLog) FetchOutboundMessages(ctx context.Context, channel store.Channel, since time.Time) ([]OutboundMessage, error) {
	rows, err := l.db.QueryContext(ctx, `
        SELECT id, to_address, body, sent_at
        FROM outbound_messages
        WHERE channel = $1 AND sent_at >= $2
        ORDER BY sent_at ASC
    `, string(channel), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]OutboundMessage, 0)
	for rows.Next() {
		m := OutboundMessage{Chan: channel}
		if err := rows.Scan(&m.ID, &m.To, &m.Text, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FetchConversationTurns pairs each user message with the first agent
// response in the same conversation within five minutes.
func (l *SQLMessageLog) FetchConversationTurns(ctx context.Context, filter TurnFilter) ([]ConversationTurn, error) {
	q := `
        SELECT u.conversation_id, u.id, u.channel, u.body, a.body, u.sent_at, a.sent_at
        FROM conversation_messages u
        JOIN LATERAL (
            SELECT m.body, m.sent_at FROM conversation_messages m
            WHERE m.conversation_id = u.conversation_id
              AND m.role = 'assistant'
              AND m.sent_at > u.sent_at
              AND m.sent_at <= u.sent_at + interval '5 minutes'
            ORDER BY m.sent_at ASC LIMIT 1
        ) a ON TRUE
        WHERE u.role = 'user'
          AND ($1 = '' OR u.channel = $1)
          AND ($2::timestamptz IS NULL OR u.sent_at >= $2)
          AND ($3::timestamptz IS NULL OR u.sent_at < $3)
          AND ($4 = '' OR u.conversation_id = $4)
    `
	args := []interface{}{
		string(filter.Channel),
		nullTime(filter.Since),
		nullTime(filter.Until),
		filter.ConversationRef,
	}
	if filter.ExcludeEvaluated {
		// Filter store-side so LIMIT counts only turns still to judge.
		q += `      AND NOT EXISTS (
            SELECT 1 FROM evaluation_records e
            WHERE e.conversation_ref = u.conversation_id AND e.turn_ref = u.id
        )
    `
	}
	q += `    ORDER BY u.sent_at ASC
    `
	if filter.Limit > 0 {
		q += ` LIMIT $5`
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ConversationTurn, 0)
	for rows.Next() {
		var turn ConversationTurn
		var channel string
		if err := rows.Scan(&turn.ConversationRef, &turn.TurnRef, &channel, &turn.UserMessage, &turn.AgentResponse, &turn.UserAt, &turn.AgentAt); err != nil {
			return nil, err
		}
		turn.Channel = store.Channel(channel)
		turn.LatencySeconds = turn.AgentAt.Sub(turn.UserAt).Seconds()
		out = append(out, turn)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
