// internal/model/enrollment.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment binds one lead to one sequence. LastExecutedStep is the cursor:
// 0 means nothing has run yet.
type Enrollment struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	LeadID           uuid.UUID  `db:"lead_id" json:"lead_id"`
	SequenceID       uuid.UUID  `db:"sequence_id" json:"sequence_id"`
	EnrolledAt       time.Time  `db:"enrolled_at" json:"enrolled_at"`
	LastExecutedStep int        `db:"last_executed_step" json:"last_executed_step"`
	Completed        bool       `db:"completed" json:"completed"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// DueEnrollment is one enrollment whose immediate next step is due.
type DueEnrollment struct {
	EnrollmentID     uuid.UUID  `db:"enrollment_id" json:"enrollment_id"`
	LeadID           uuid.UUID  `db:"lead_id" json:"lead_id"`
	SequenceID       uuid.UUID  `db:"sequence_id" json:"sequence_id"`
	LastExecutedStep int        `db:"last_executed_step" json:"last_executed_step"`
	StepOrder        int        `db:"step_order" json:"step_order"`
	Channel          string     `db:"channel" json:"channel"`
	TemplateID       *uuid.UUID `db:"template_id" json:"template_id,omitempty"`
}
