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

type OutboundMessageRepositoryInterface interface {
	Create(ctx context.Context, msg *model.OutboundMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.OutboundMessage, error)
}

type OutboundStatsReader interface {
	CountByStatusForSequence(ctx context.Context, sequenceID uuid.UUID) (map[string]int, error)
}

// DeliveryRepositoryInterface is what the delivery worker needs.
type DeliveryRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.OutboundMessage, error)
	RecordDelivery(ctx context.Context, d *model.OutboundDelivery) error
	CountDeliveries(ctx context.Context, messageID uuid.UUID) (int, error)
	HasDelivered(ctx context.Context, messageID uuid.UUID) (bool, error)
}

// OutboundMessageRepository appends to outbound_messages and
// outbound_deliveries. Neither table is ever updated.
type OutboundMessageRepository struct {
	DB db.DBTX
}

// Create inserts a new outbound message and fills in its generated ID
func (r *OutboundMessageRepository) Create(ctx context.Context, msg *model.OutboundMessage) error {
	query := `
        INSERT INTO outbound_messages
        (enrollment_id, lead_id, channel, template_id, step_order, status, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRowContext(
		ctx,
		query,
		msg.EnrollmentID,
		msg.LeadID,
		msg.Channel,
		msg.TemplateID,
		msg.StepOrder,
		msg.Status,
		msg.SentAt,
	).Scan(&msg.ID)
}

// GetByID fetches an outbound message by its ID
func (r *OutboundMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OutboundMessage, error) {
	query := `
        SELECT id, enrollment_id, lead_id, channel, template_id, step_order, status, sent_at
        FROM outbound_messages
        WHERE id=$1
    `
	var msg model.OutboundMessage
	var enrollment, tmpl uuid.NullUUID
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&enrollment,
		&msg.LeadID,
		&msg.Channel,
		&tmpl,
		&msg.StepOrder,
		&msg.Status,
		&msg.SentAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewOutboundMessageNotFound(id)
		}
		return nil, err
	}
	msg.EnrollmentID = uuidPtr(enrollment)
	msg.TemplateID = uuidPtr(tmpl)
	return &msg, nil
}

// CountByStatusForSequence groups the sequence's outbound messages by status.
func (r *OutboundMessageRepository) CountByStatusForSequence(ctx context.Context, sequenceID uuid.UUID) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT om.status, COUNT(*)
        FROM outbound_messages om
        JOIN automation_enrollments ae ON ae.id = om.enrollment_id
        WHERE ae.sequence_id = $1
        GROUP BY om.status
    `, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, model.MessageStatusSent: 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *OutboundMessageRepository) RecordDelivery(ctx context.Context, d *model.OutboundDelivery) error {
	return r.DB.QueryRowContext(ctx, `
        INSERT INTO outbound_deliveries (outbound_message_id, attempt, status, last_error, attempted_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `, d.OutboundMessageID, d.Attempt, d.Status, d.LastError, d.AttemptedAt).Scan(&d.ID)
}

func (r *OutboundMessageRepository) CountDeliveries(ctx context.Context, messageID uuid.UUID) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_deliveries WHERE outbound_message_id=$1`, messageID,
	).Scan(&count)
	return count, err
}

// HasDelivered reports whether any attempt for the message reached the provider.
func (r *OutboundMessageRepository) HasDelivered(ctx context.Context, messageID uuid.UUID) (bool, error) {
	var delivered bool
	err := r.DB.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM outbound_deliveries WHERE outbound_message_id=$1 AND status=$2
        )
    `, messageID, model.DeliveryStatusDelivered).Scan(&delivered)
	return delivered, err
}

var (
	_ OutboundMessageRepositoryInterface = (*OutboundMessageRepository)(nil)
	_ DeliveryRepositoryInterface        = (*OutboundMessageRepository)(nil)
	_ OutboundStatsReader                = (*OutboundMessageRepository)(nil)
)
