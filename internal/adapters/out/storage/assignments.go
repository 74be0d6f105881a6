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

// ResolveAssignment - единственная атомарная операция назначения:
// INSERT назначения (уникально по shift_id) и перевод слота в FILLED
// при совпадении статуса и версии, в одной транзакции. Победитель определяется
// порядком сериализации записей в базе, а не блокировками приложения.
func (s *SQLAdapter) ResolveAssignment(ctx context.Context, assignment *domain.Assignment, cond domain.ResolveCondition) error {
	if len(cond.Statuses) == 0 {
		return fmt.Errorf("resolve condition requires at least one status")
	}
	if assignment.ResolvedAt.IsZero() {
		assignment.ResolvedAt = s.now()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var acceptedAttemptID interface{}
	if assignment.AcceptedAttemptID != nil {
		acceptedAttemptID = assignment.AcceptedAttemptID.String()
	}

	inserted, err := s.exec(ctx, tx,
		`INSERT INTO assignments (shift_id, candidate_id, accepted_attempt_id, source, resolved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (shift_id) DO NOTHING`,
		assignment.ShiftID.String(), assignment.CandidateID, acceptedAttemptID,
		string(assignment.Source), utc(assignment.ResolvedAt),
	)
	if err != nil {
		return err
	}
	if inserted == 0 {
		return domain.ErrAlreadyResolved
	}

	in, statusArgsList := statusArgs(cond.Statuses)
	query := `UPDATE shift_slots
		SET status = ?, wave_expires_at = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND status IN ` + in
	args := append([]interface{}{string(domain.ShiftStatusFilled), s.now(), assignment.ShiftID.String()}, statusArgsList...)
	if cond.Version > 0 {
		query += ` AND version = ?`
		args = append(args, cond.Version)
	}

	updated, err := s.exec(ctx, tx, query, args...)
	if err != nil {
		return err
	}
	if updated == 0 {
		// Назначение откатывается вместе с транзакцией, выясняем причину
		var status string
		var version int64
		err := s.queryRow(ctx, tx, `SELECT status, version FROM shift_slots WHERE id = ?`,
			assignment.ShiftID.String()).Scan(&status, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrShiftNotFound
		}
		if err != nil {
			return err
		}
		if containsStatus(cond.Statuses, domain.ShiftStatus(status)) && cond.Version > 0 && version != cond.Version {
			return domain.ErrVersionConflict
		}
		return domain.ErrAlreadyResolved
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("storage.assignment.commit_failed", out.LogFields{
			"shiftId": assignment.ShiftID,
			"error":   err.Error(),
		})
		return err
	}
	return nil
}

func (s *SQLAdapter) GetAssignment(ctx context.Context, shiftID uuid.UUID) (*domain.Assignment, error) {
	var (
		a          domain.Assignment
		id         string
		acceptedID sql.NullString
		source     string
	)
	err := s.queryRow(ctx, s.conn,
		`SELECT shift_id, candidate_id, accepted_attempt_id, source, resolved_at FROM assignments WHERE shift_id = ?`,
		shiftID.String(),
	).Scan(&id, &a.CandidateID, &acceptedID, &source, &a.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.ShiftID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if acceptedID.Valid {
		parsed, err := uuid.Parse(acceptedID.String)
		if err != nil {
			return nil, err
		}
		a.AcceptedAttemptID = &parsed
	}
	a.Source = domain.AssignmentSource(source)
	a.ResolvedAt = a.ResolvedAt.UTC()
	return &a, nil
}
