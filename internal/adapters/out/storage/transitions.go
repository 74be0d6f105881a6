package storage

import (
	"context"

	"github.com/google/uuid"
)

// RecordTransition возвращает true только первому записавшему переход.
func (s *SQLAdapter) RecordTransition(ctx context.Context, shiftID uuid.UUID, key string) (bool, error) {
	inserted, err := s.exec(ctx, s.conn,
		`INSERT INTO transitions (shift_id, transition_key, created_at) VALUES (?, ?, ?)
		ON CONFLICT (shift_id, transition_key) DO NOTHING`,
		shiftID.String(), key, s.now(),
	)
	if err != nil {
		return false, err
	}
	return inserted == 1, nil
}
