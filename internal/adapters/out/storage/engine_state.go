package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

func (s *SQLAdapter) GetEngineState(ctx context.Context) (*domain.EngineState, error) {
	var (
		state    domain.EngineState
		haltedAt sql.NullTime
	)
	err := s.queryRow(ctx, s.conn,
		`SELECT halted, reason, halted_at FROM engine_state WHERE id = 1`,
	).Scan(&state.Halted, &state.Reason, &haltedAt)
	if err != nil {
		return nil, err
	}
	state.HaltedAt = timePtr(haltedAt)
	return &state, nil
}

// SetEngineHalted переключает флаг остановки; true только если флаг действительно изменился.
func (s *SQLAdapter) SetEngineHalted(ctx context.Context, halted bool, reason string, at time.Time) (bool, error) {
	var haltedAt interface{}
	if halted {
		haltedAt = utc(at)
	}
	changed, err := s.exec(ctx, s.conn,
		`UPDATE engine_state SET halted = ?, reason = ?, halted_at = ? WHERE id = 1 AND halted = ?`,
		halted, reason, haltedAt, !halted,
	)
	if err != nil {
		return false, err
	}
	return changed == 1, nil
}

// RecordSendFailure записывает отказ отправки и возвращает число отказов
// всех инстансов после since. Записи старше окна удаляются.
func (s *SQLAdapter) RecordSendFailure(ctx context.Context, cause string, at time.Time, since time.Time) (int, error) {
	if _, err := s.exec(ctx, s.conn,
		`INSERT INTO send_failures (cause, failed_at) VALUES (?, ?)`, cause, utc(at),
	); err != nil {
		return 0, err
	}
	if _, err := s.exec(ctx, s.conn,
		`DELETE FROM send_failures WHERE failed_at <= ?`, utc(since),
	); err != nil {
		return 0, err
	}

	var count int
	err := s.queryRow(ctx, s.conn,
		`SELECT COUNT(*) FROM send_failures WHERE failed_at > ?`, utc(since),
	).Scan(&count)
	return count, err
}

func (s *SQLAdapter) ClearSendFailures(ctx context.Context) error {
	_, err := s.exec(ctx, s.conn, `DELETE FROM send_failures`)
	return err
}
