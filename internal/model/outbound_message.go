// internal/model/outbound_message.go
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageStatusSent = "sent"

	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

// OutboundMessage is the append-only log row written once per executed step.
type OutboundMessage struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	EnrollmentID *uuid.UUID `db:"enrollment_id" json:"enrollment_id,omitempty"`
	LeadID       uuid.UUID  `db:"lead_id" json:"lead_id"`
	Channel      string     `db:"channel" json:"channel"`
	TemplateID   *uuid.UUID `db:"template_id" json:"template_id,omitempty"`
	StepOrder    int        `db:"step_order" json:"step_order"`
	Status       string     `db:"status" json:"status"`
	SentAt       time.Time  `db:"sent_at" json:"sent_at"`
}

// OutboundDelivery records one provider delivery attempt for an outbound message.
type OutboundDelivery struct {
	ID                int64     `db:"id" json:"id"`
	OutboundMessageID uuid.UUID `db:"outbound_message_id" json:"outbound_message_id"`
	Attempt           int       `db:"attempt" json:"attempt"`
	Status            string    `db:"status" json:"status"` // delivered, failed
	LastError         string    `db:"last_error" json:"last_error,omitempty"`
	AttemptedAt       time.Time `db:"attempted_at" json:"attempted_at"`
}
