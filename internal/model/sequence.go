// internal/model/sequence.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Sequence is an ordered drip campaign. Steps are attached at creation and
// not edited afterwards.
type Sequence struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	OrgID     uuid.UUID      `db:"org_id" json:"org_id"`
	Name      string         `db:"name" json:"name"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	Steps     []SequenceStep `json:"steps,omitempty"`
}

type SequenceStep struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	SequenceID uuid.UUID  `db:"sequence_id" json:"sequence_id"`
	StepOrder  int        `db:"step_order" json:"step_order"` // 1-based, unique per sequence
	OffsetDays int        `db:"offset_days" json:"offset_days"`
	Channel    string     `db:"channel" json:"channel"`
	TemplateID *uuid.UUID `db:"template_id" json:"template_id,omitempty"`
}

const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)
