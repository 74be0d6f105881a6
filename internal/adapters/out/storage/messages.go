package storage

import (
	"context"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

func (s *SQLAdapter) AppendOutboundMessage(ctx context.Context, msg domain.SentMessage) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	_, err := s.exec(ctx, s.conn,
		`INSERT INTO outbound_messages (conversation_key, body, sent_at) VALUES (?, ?, ?)`,
		msg.ConversationKey, msg.Text, utc(msg.SentAt),
	)
	return err
}

// ListOutboundMessages возвращает последние limit сообщений начиная с since, от старых к новым.
func (s *SQLAdapter) ListOutboundMessages(ctx context.Context, conversationKey string, since time.Time, limit int) ([]domain.SentMessage, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.query(ctx, s.conn,
		`SELECT conversation_key, body, sent_at FROM outbound_messages
		WHERE conversation_key = ? AND sent_at >= ?
		ORDER BY sent_at DESC, id DESC LIMIT ?`,
		conversationKey, utc(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.SentMessage
	for rows.Next() {
		var msg domain.SentMessage
		if err := rows.Scan(&msg.ConversationKey, &msg.Text, &msg.SentAt); err != nil {
			return nil, err
		}
		msg.SentAt = msg.SentAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
