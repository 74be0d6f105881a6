package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

const attemptColumns = `id, shift_id, candidate_id, channel, tier, recipient, message, idempotency_key,
	delivery_status, delivery_id, send_attempts, sent_at, created_at`

func scanAttempt(row rowScanner) (*domain.OutreachAttempt, error) {
	var (
		attempt  domain.OutreachAttempt
		id       string
		shiftID  string
		channel  string
		delivery string
		sentAt   sql.NullTime
	)
	err := row.Scan(
		&id, &shiftID, &attempt.CandidateID, &channel, &attempt.Tier, &attempt.Recipient, &attempt.Message,
		&attempt.IdempotencyKey, &delivery, &attempt.DeliveryID, &attempt.SendAttempts, &sentAt, &attempt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if attempt.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid attempt id %q: %w", id, err)
	}
	if attempt.ShiftID, err = uuid.Parse(shiftID); err != nil {
		return nil, fmt.Errorf("invalid shift id %q: %w", shiftID, err)
	}
	attempt.Channel = domain.Channel(channel)
	attempt.DeliveryStatus = domain.DeliveryStatus(delivery)
	attempt.SentAt = timePtr(sentAt)
	attempt.CreatedAt = attempt.CreatedAt.UTC()
	return &attempt, nil
}

// InsertAttempt добавляет попытку, только пока слот в WAVE_ACTIVE на тире попытки.
// Иначе возвращает domain.ErrWaveNotActive. Повтор с тем же ключом идемпотентности - no-op.
func (s *SQLAdapter) InsertAttempt(ctx context.Context, attempt *domain.OutreachAttempt) (bool, error) {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}
	if attempt.DeliveryStatus == "" {
		attempt.DeliveryStatus = domain.DeliveryStatusPending
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// Строка слота блокируется до коммита: назначение не проскочит между проверкой и вставкой
	lock := ""
	if s.dialect == dialectPostgres {
		lock = " FOR UPDATE"
	}
	var (
		status string
		tier   int
	)
	err = s.queryRow(ctx, tx, `SELECT status, tier FROM shift_slots WHERE id = ?`+lock,
		attempt.ShiftID.String()).Scan(&status, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrShiftNotFound
	}
	if err != nil {
		return false, err
	}
	if domain.ShiftStatus(status) != domain.ShiftStatusWaveActive || tier != attempt.Tier {
		return false, fmt.Errorf("%w: shift is %s at tier %d", domain.ErrWaveNotActive, status, tier)
	}

	inserted, err := s.exec(ctx, tx,
		`INSERT INTO outreach_attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		attempt.ID.String(), attempt.ShiftID.String(), attempt.CandidateID, string(attempt.Channel), attempt.Tier,
		attempt.Recipient, attempt.Message, attempt.IdempotencyKey, string(attempt.DeliveryStatus),
		attempt.DeliveryID, attempt.SendAttempts, nullTime(attempt.SentAt), utc(attempt.CreatedAt),
	)
	if err != nil {
		s.logger.Error("storage.attempt.insert_failed", out.LogFields{
			"idempotencyKey": attempt.IdempotencyKey,
			"error":          err.Error(),
		})
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return inserted == 1, nil
}

// UpdateAttemptDelivery меняет только статус доставки; вытесненные попытки не трогаются.
func (s *SQLAdapter) UpdateAttemptDelivery(ctx context.Context, attemptID uuid.UUID, status domain.DeliveryStatus, deliveryID string, sendAttempts int) error {
	var sentAt interface{}
	if status == domain.DeliveryStatusSent {
		sentAt = s.now()
	}
	_, err := s.exec(ctx, s.conn,
		`UPDATE outreach_attempts
		SET delivery_status = ?, delivery_id = ?, send_attempts = ?, sent_at = COALESCE(?, sent_at)
		WHERE id = ? AND delivery_status <> ?`,
		string(status), deliveryID, sendAttempts, sentAt,
		attemptID.String(), string(domain.DeliveryStatusSuperseded),
	)
	return err
}

// SupersedePendingAttempts помечает все незавершенные попытки слота как вытесненные.
func (s *SQLAdapter) SupersedePendingAttempts(ctx context.Context, shiftID uuid.UUID, exceptAttemptID *uuid.UUID) (int64, error) {
	query := `UPDATE outreach_attempts SET delivery_status = ?
		WHERE shift_id = ? AND delivery_status IN (?, ?)`
	args := []interface{}{
		string(domain.DeliveryStatusSuperseded), shiftID.String(),
		string(domain.DeliveryStatusPending), string(domain.DeliveryStatusSent),
	}
	if exceptAttemptID != nil {
		query += ` AND id <> ?`
		args = append(args, exceptAttemptID.String())
	}
	return s.exec(ctx, s.conn, query, args...)
}

func (s *SQLAdapter) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*domain.OutreachAttempt, error) {
	attempt, err := scanAttempt(s.queryRow(ctx, s.conn,
		`SELECT `+attemptColumns+` FROM outreach_attempts WHERE id = ?`, attemptID.String(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	return attempt, err
}

func (s *SQLAdapter) ListAttempts(ctx context.Context, shiftID uuid.UUID) ([]domain.OutreachAttempt, error) {
	rows, err := s.query(ctx, s.conn,
		`SELECT `+attemptColumns+` FROM outreach_attempts WHERE shift_id = ?
		ORDER BY tier ASC, created_at ASC, candidate_id ASC`, shiftID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []domain.OutreachAttempt{}
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *attempt)
	}
	return attempts, rows.Err()
}

func (s *SQLAdapter) ListAttemptedCandidates(ctx context.Context, shiftID uuid.UUID) ([]string, error) {
	rows, err := s.query(ctx, s.conn,
		`SELECT DISTINCT candidate_id FROM outreach_attempts WHERE shift_id = ? ORDER BY candidate_id ASC`,
		shiftID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
