package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadflow-backend/internal/db"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

type EnrollmentRepositoryInterface interface {
	Enroll(ctx context.Context, leadID, sequenceID uuid.UUID) (*model.Enrollment, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Enrollment, error)
	SelectDue(ctx context.Context, now time.Time) ([]model.DueEnrollment, error)
	Advance(ctx context.Context, id uuid.UUID, expectedStep, executedStep int, completed bool, now time.Time) error
}

type EnrollmentRepository struct {
	DB db.DBTX
}

const enrollmentColumns = `id, lead_id, sequence_id, enrolled_at, last_executed_step, completed, updated_at`

func scanEnrollment(row interface{ Scan(...any) error }) (*model.Enrollment, error) {
	var e model.Enrollment
	var updated sql.NullTime
	if err := row.Scan(&e.ID, &e.LeadID, &e.SequenceID, &e.EnrolledAt, &e.LastExecutedStep, &e.Completed, &updated); err != nil {
		return nil, err
	}
	if updated.Valid {
		e.UpdatedAt = &updated.Time
	}
	return &e, nil
}

// Enroll is idempotent on (lead, sequence). The bool reports whether a new
// enrollment was created; an existing one is returned untouched otherwise.
func (r *EnrollmentRepository) Enroll(ctx context.Context, leadID, sequenceID uuid.UUID) (*model.Enrollment, bool, error) {
	row := r.DB.QueryRowContext(ctx, `
        INSERT INTO automation_enrollments (lead_id, sequence_id)
        VALUES ($1, $2)
        ON CONFLICT (lead_id, sequence_id) DO NOTHING
        RETURNING `+enrollmentColumns,
		leadID, sequenceID,
	)
	e, err := scanEnrollment(row)
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	row = r.DB.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM automation_enrollments WHERE lead_id=$1 AND sequence_id=$2`,
		leadID, sequenceID,
	)
	e, err = scanEnrollment(row)
	if err != nil {
		return nil, false, err
	}
	return e, false, nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Enrollment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM automation_enrollments WHERE id=$1`, id)
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewEnrollmentNotFound(id)
		}
		return nil, err
	}
	return e, nil
}

// SelectDue returns every incomplete enrollment whose immediate next step
// exists and whose offset has elapsed at now. Enrollments past their last
// step, or with a gap at last_executed_step+1, are not returned.
func (r *EnrollmentRepository) SelectDue(ctx context.Context, now time.Time) ([]model.DueEnrollment, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT ae.id, ae.lead_id, ae.sequence_id, ae.last_executed_step,
               s.step_order, s.channel, s.template_id
        FROM automation_enrollments ae
        JOIN automation_sequence_steps s
          ON s.sequence_id = ae.sequence_id AND s.step_order = ae.last_executed_step + 1
        JOIN leads l ON l.id = ae.lead_id
        WHERE ae.completed = false
          AND ae.enrolled_at + make_interval(days => s.offset_days) <= $1
        ORDER BY ae.enrolled_at, ae.id
    `, now)
	if err != nil {
		return nil, fmt.Errorf("select due enrollments: %w", err)
	}
	defer rows.Close()

	due := []model.DueEnrollment{}
	for rows.Next() {
		var d model.DueEnrollment
		var tmpl uuid.NullUUID
		if err := rows.Scan(&d.EnrollmentID, &d.LeadID, &d.SequenceID, &d.LastExecutedStep,
			&d.StepOrder, &d.Channel, &tmpl); err != nil {
			return nil, fmt.Errorf("scan due enrollment: %w", err)
		}
		d.TemplateID = uuidPtr(tmpl)
		due = append(due, d)
	}
	return due, rows.Err()
}

// Advance moves the cursor only if it still equals expectedStep and the
// enrollment is not yet complete. Zero affected rows yields ErrStaleCursor.
func (r *EnrollmentRepository) Advance(ctx context.Context, id uuid.UUID, expectedStep, executedStep int, completed bool, now time.Time) error {
	result, err := r.DB.ExecContext(ctx, `
        UPDATE automation_enrollments
        SET last_executed_step=$1, completed=$2, updated_at=$3
        WHERE id=$4 AND last_executed_step=$5 AND completed=false
    `, executedStep, completed, now, id, expectedStep)
	if err != nil {
		return fmt.Errorf("advance enrollment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return appErrors.ErrStaleCursor
	}
	return nil
}

var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)
