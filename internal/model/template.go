// internal/model/template.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageTemplate struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrgID     uuid.UUID `db:"org_id" json:"org_id"`
	Channel   string    `db:"channel" json:"channel"`
	Name      string    `db:"name" json:"name"`
	Subject   *string   `db:"subject" json:"subject,omitempty"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
