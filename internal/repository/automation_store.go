package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadflow-backend/internal/db"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

// StepTx is the set of writes a single step execution performs atomically.
type StepTx interface {
	InsertOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error
	CountStepsAfter(ctx context.Context, sequenceID uuid.UUID, stepOrder int) (int, error)
	AdvanceEnrollment(ctx context.Context, id uuid.UUID, expectedStep, executedStep int, completed bool, now time.Time) error
}

// AutomationStoreInterface is the store the automation engine runs against.
type AutomationStoreInterface interface {
	SelectDue(ctx context.Context, now time.Time) ([]model.DueEnrollment, error)
	InTx(ctx context.Context, fn func(tx StepTx) error) error
}

// AutomationStore backs the engine with Postgres.
type AutomationStore struct {
	DB *sql.DB
}

func (s *AutomationStore) SelectDue(ctx context.Context, now time.Time) ([]model.DueEnrollment, error) {
	return (&EnrollmentRepository{DB: s.DB}).SelectDue(ctx, now)
}

func (s *AutomationStore) InTx(ctx context.Context, fn func(tx StepTx) error) error {
	return db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return fn(&stepTx{
			sequences:   &SequenceRepository{DB: tx},
			enrollments: &EnrollmentRepository{DB: tx},
			outbound:    &OutboundMessageRepository{DB: tx},
		})
	})
}

// CreateSequence inserts the sequence and all of its steps in one transaction.
func (s *AutomationStore) CreateSequence(ctx context.Context, seq *model.Sequence) error {
	return db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return (&SequenceRepository{DB: tx}).Create(ctx, seq)
	})
}

type stepTx struct {
	sequences   *SequenceRepository
	enrollments *EnrollmentRepository
	outbound    *OutboundMessageRepository
}

func (t *stepTx) InsertOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error {
	return t.outbound.Create(ctx, msg)
}

func (t *stepTx) CountStepsAfter(ctx context.Context, sequenceID uuid.UUID, stepOrder int) (int, error) {
	return t.sequences.CountStepsAfter(ctx, sequenceID, stepOrder)
}

func (t *stepTx) AdvanceEnrollment(ctx context.Context, id uuid.UUID, expectedStep, executedStep int, completed bool, now time.Time) error {
	return t.enrollments.Advance(ctx, id, expectedStep, executedStep, completed, now)
}

var (
	_ AutomationStoreInterface = (*AutomationStore)(nil)
	_ SequenceWriter           = (*AutomationStore)(nil)
)
