// internal/controller/sequence_controller.go
package controller

import (
	"net/http"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/middleware"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

type SequenceController struct {
	SequenceService *service.SequenceService
}

func orgOf(r *http.Request) (uuid.UUID, error) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		return uuid.Nil, appErrors.NewValidation("missing caller organization")
	}
	return claims.OrgID, nil
}

func (c *SequenceController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body service.CreateTemplateInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	org, err := orgOf(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	tmpl, err := c.SequenceService.CreateTemplate(r.Context(), org, body)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": tmpl.ID})
}

func (c *SequenceController) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var body service.CreateSequenceInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	org, err := orgOf(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	seq, err := c.SequenceService.CreateSequence(r.Context(), org, body)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": seq.ID})
}

func (c *SequenceController) Enroll(w http.ResponseWriter, r *http.Request) {
	var body service.EnrollInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	org, err := orgOf(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	enrollment, created, err := c.SequenceService.Enroll(r.Context(), org, body)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"enrolled":      created,
		"enrollment_id": enrollment.ID,
	})
}

func (c *SequenceController) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	org, err := orgOf(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	enrollment, err := c.SequenceService.GetEnrollment(r.Context(), org, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}
