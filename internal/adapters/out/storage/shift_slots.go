package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

const shiftSlotColumns = `id, shift_ref, shift_date, client_id, original_caregiver_id, start_time, end_time,
	required_skills, required_language, lat, lon, reason, status, tier, version,
	wave_started_at, wave_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShiftSlot(row rowScanner) (*domain.ShiftSlot, error) {
	var (
		slot          domain.ShiftSlot
		id            string
		skills        stringList
		status        string
		waveStartedAt sql.NullTime
		waveExpiresAt sql.NullTime
	)
	err := row.Scan(
		&id, &slot.ShiftRef, &slot.ShiftDate, &slot.ClientID, &slot.OriginalCaregiverID,
		&slot.StartTime, &slot.EndTime, &skills, &slot.RequiredLanguage,
		&slot.Location.Lat, &slot.Location.Lon, &slot.Reason, &status, &slot.Tier, &slot.Version,
		&waveStartedAt, &waveExpiresAt, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid shift id %q: %w", id, err)
	}
	slot.RequiredSkills = []string(skills)
	slot.Status = domain.ShiftStatus(status)
	slot.StartTime = slot.StartTime.UTC()
	slot.EndTime = slot.EndTime.UTC()
	slot.CreatedAt = slot.CreatedAt.UTC()
	slot.UpdatedAt = slot.UpdatedAt.UTC()
	slot.WaveStartedAt = timePtr(waveStartedAt)
	slot.WaveExpiresAt = timePtr(waveExpiresAt)
	return &slot, nil
}

// CreateShiftSlot создает слот один раз на смену и дату.
// Второй вызов возвращает уже существующий слот и created=false.
func (s *SQLAdapter) CreateShiftSlot(ctx context.Context, slot *domain.ShiftSlot) (*domain.ShiftSlot, bool, error) {
	now := s.now()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = slot.CreatedAt
	if slot.Version == 0 {
		slot.Version = 1
	}

	inserted, err := s.exec(ctx, s.conn,
		`INSERT INTO shift_slots (`+shiftSlotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (shift_ref, shift_date) DO NOTHING`,
		slot.ID.String(), slot.ShiftRef, slot.ShiftDate, slot.ClientID, slot.OriginalCaregiverID,
		utc(slot.StartTime), utc(slot.EndTime), s.dialect.list(slot.RequiredSkills), slot.RequiredLanguage,
		slot.Location.Lat, slot.Location.Lon, slot.Reason, string(slot.Status), slot.Tier, slot.Version,
		nullTime(slot.WaveStartedAt), nullTime(slot.WaveExpiresAt), utc(slot.CreatedAt), utc(slot.UpdatedAt),
	)
	if err != nil {
		s.logger.Error("storage.shift_slot.insert_failed", out.LogFields{
			"shiftRef": slot.ShiftRef,
			"error":    err.Error(),
		})
		return nil, false, err
	}

	if inserted == 0 {
		existing, err := scanShiftSlot(s.queryRow(ctx, s.conn,
			`SELECT `+shiftSlotColumns+` FROM shift_slots WHERE shift_ref = ? AND shift_date = ?`,
			slot.ShiftRef, slot.ShiftDate,
		))
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	created, err := s.GetShiftSlot(ctx, slot.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *SQLAdapter) GetShiftSlot(ctx context.Context, shiftID uuid.UUID) (*domain.ShiftSlot, error) {
	slot, err := scanShiftSlot(s.queryRow(ctx, s.conn,
		`SELECT `+shiftSlotColumns+` FROM shift_slots WHERE id = ?`, shiftID.String(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrShiftNotFound
	}
	return slot, err
}

// CompareAndSwapShift применяет next, только если слот все еще в состоянии expect.
func (s *SQLAdapter) CompareAndSwapShift(ctx context.Context, shiftID uuid.UUID, expect domain.ShiftExpectation, next domain.ShiftState) (bool, error) {
	query := `UPDATE shift_slots
		SET status = ?, tier = ?, wave_started_at = ?, wave_expires_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`
	args := []interface{}{
		string(next.Status), next.Tier, nullTime(next.WaveStartedAt), nullTime(next.WaveExpiresAt), s.now(),
		shiftID.String(), string(expect.Status),
	}
	if expect.Tier > 0 {
		query += ` AND tier = ?`
		args = append(args, expect.Tier)
	}
	if expect.Version > 0 {
		query += ` AND version = ?`
		args = append(args, expect.Version)
	}

	affected, err := s.exec(ctx, s.conn, query, args...)
	if err != nil {
		s.logger.Error("storage.shift_slot.cas_failed", out.LogFields{
			"shiftId": shiftID,
			"from":    expect.Status,
			"to":      next.Status,
			"error":   err.Error(),
		})
		return false, err
	}
	return affected == 1, nil
}

func (s *SQLAdapter) listShifts(ctx context.Context, where string, args ...interface{}) ([]*domain.ShiftSlot, error) {
	rows, err := s.query(ctx, s.conn,
		`SELECT `+shiftSlotColumns+` FROM shift_slots WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []*domain.ShiftSlot
	for rows.Next() {
		slot, err := scanShiftSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (s *SQLAdapter) ListShiftsByStatus(ctx context.Context, status domain.ShiftStatus) ([]*domain.ShiftSlot, error) {
	return s.listShifts(ctx, `status = ?`, string(status))
}

// ListDueWaves - активные волны с истекшим дедлайном.
func (s *SQLAdapter) ListDueWaves(ctx context.Context, now time.Time) ([]*domain.ShiftSlot, error) {
	return s.listShifts(ctx, `status = ? AND wave_expires_at IS NOT NULL AND wave_expires_at <= ?`,
		string(domain.ShiftStatusWaveActive), utc(now))
}

// ListStartedEscalations - эскалированные слоты, смена которых уже началась.
func (s *SQLAdapter) ListStartedEscalations(ctx context.Context, now time.Time) ([]*domain.ShiftSlot, error) {
	return s.listShifts(ctx, `status = ? AND start_time <= ?`,
		string(domain.ShiftStatusEscalated), utc(now))
}

func statusArgs(statuses []domain.ShiftStatus) (string, []interface{}) {
	args := make([]interface{}, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return "(" + placeholders(len(statuses)) + ")", args
}

func containsStatus(statuses []domain.ShiftStatus, status domain.ShiftStatus) bool {
	for _, st := range statuses {
		if strings.EqualFold(string(st), string(status)) {
			return true
		}
	}
	return false
}
