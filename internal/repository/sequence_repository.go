package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/unclebandit/leadflow-backend/internal/db"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

type SequenceRepositoryInterface interface {
	Create(ctx context.Context, s *model.Sequence) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Sequence, error)

	// Step catalog
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]model.SequenceStep, error)
	CountStepsAfter(ctx context.Context, sequenceID uuid.UUID, stepOrder int) (int, error)

	EnrollmentStats(ctx context.Context, sequenceID uuid.UUID) (map[string]int, error)
}

// SequenceWriter creates a sequence together with its steps atomically.
type SequenceWriter interface {
	CreateSequence(ctx context.Context, s *model.Sequence) error
}

// SequenceRepository reads and writes sequences and their steps. Steps are
// treated as read-only once the sequence is created.
type SequenceRepository struct {
	DB db.DBTX
}

// Create inserts the sequence and its steps. Run it inside a transaction so a
// failing step leaves no half-built sequence behind.
func (r *SequenceRepository) Create(ctx context.Context, s *model.Sequence) error {
	query := `
        INSERT INTO automation_sequences (org_id, name)
        VALUES ($1, $2)
        RETURNING id, created_at
    `
	if err := r.DB.QueryRowContext(ctx, query, s.OrgID, s.Name).Scan(&s.ID, &s.CreatedAt); err != nil {
		return err
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		step.SequenceID = s.ID
		err := r.DB.QueryRowContext(ctx, `
            INSERT INTO automation_sequence_steps (sequence_id, step_order, offset_days, channel, template_id)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id
        `, s.ID, step.StepOrder, step.OffsetDays, step.Channel, step.TemplateID).Scan(&step.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SequenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Sequence, error) {
	query := `SELECT id, org_id, name, created_at FROM automation_sequences WHERE id=$1`
	var s model.Sequence
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.OrgID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSequenceNotFound(id)
		}
		return nil, err
	}

	steps, err := r.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Steps = steps
	return &s, nil
}

func (r *SequenceRepository) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]model.SequenceStep, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, sequence_id, step_order, offset_days, channel, template_id
        FROM automation_sequence_steps
        WHERE sequence_id=$1
        ORDER BY step_order
    `, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []model.SequenceStep{}
	for rows.Next() {
		var st model.SequenceStep
		var tmpl uuid.NullUUID
		if err := rows.Scan(&st.ID, &st.SequenceID, &st.StepOrder, &st.OffsetDays, &st.Channel, &tmpl); err != nil {
			return nil, err
		}
		st.TemplateID = uuidPtr(tmpl)
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// CountStepsAfter counts steps of the sequence ordered after stepOrder.
func (r *SequenceRepository) CountStepsAfter(ctx context.Context, sequenceID uuid.UUID, stepOrder int) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM automation_sequence_steps WHERE sequence_id=$1 AND step_order > $2`,
		sequenceID, stepOrder,
	).Scan(&count)
	return count, err
}

// EnrollmentStats counts active and completed enrollments of a sequence.
func (r *SequenceRepository) EnrollmentStats(ctx context.Context, sequenceID uuid.UUID) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT completed, COUNT(*)
        FROM automation_enrollments
        WHERE sequence_id=$1
        GROUP BY completed
    `, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "active": 0, "completed": 0}
	for rows.Next() {
		var completed bool
		var count int
		if err := rows.Scan(&completed, &count); err != nil {
			return nil, err
		}
		if completed {
			stats["completed"] = count
		} else {
			stats["active"] = count
		}
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ SequenceRepositoryInterface = (*SequenceRepository)(nil)
