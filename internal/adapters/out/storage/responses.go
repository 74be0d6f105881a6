package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// InsertResponse - дедупликация по provider_message_id, повтор вебхука возвращает false.
func (s *SQLAdapter) InsertResponse(ctx context.Context, response *domain.ResponseRecord) (bool, error) {
	if response.ReceivedAt.IsZero() {
		response.ReceivedAt = s.now()
	}
	inserted, err := s.exec(ctx, s.conn,
		`INSERT INTO response_records (id, attempt_id, provider_message_id, raw_text, intent, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_message_id) DO NOTHING`,
		response.ID.String(), response.AttemptID.String(), response.ProviderMessageID,
		response.RawText, string(response.Intent), utc(response.ReceivedAt),
	)
	if err != nil {
		s.logger.Error("storage.response.insert_failed", out.LogFields{
			"providerMessageId": response.ProviderMessageID,
			"error":             err.Error(),
		})
		return false, err
	}
	return inserted == 1, nil
}

func (s *SQLAdapter) ListResponses(ctx context.Context, shiftID uuid.UUID) ([]domain.ResponseRecord, error) {
	rows, err := s.query(ctx, s.conn,
		`SELECT r.id, r.attempt_id, r.provider_message_id, r.raw_text, r.intent, r.received_at
		FROM response_records r
		JOIN outreach_attempts a ON a.id = r.attempt_id
		WHERE a.shift_id = ?
		ORDER BY r.received_at ASC, r.provider_message_id ASC`, shiftID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []domain.ResponseRecord{}
	for rows.Next() {
		var (
			r         domain.ResponseRecord
			id        string
			attemptID string
			intent    string
		)
		if err := rows.Scan(&id, &attemptID, &r.ProviderMessageID, &r.RawText, &intent, &r.ReceivedAt); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid response id %q: %w", id, err)
		}
		if r.AttemptID, err = uuid.Parse(attemptID); err != nil {
			return nil, fmt.Errorf("invalid attempt id %q: %w", attemptID, err)
		}
		r.Intent = domain.Intent(intent)
		r.ReceivedAt = r.ReceivedAt.UTC()
		responses = append(responses, r)
	}
	return responses, rows.Err()
}
