// internal/handler/sequence_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/middleware"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

// SequenceHandler serves read-only sequence views
type SequenceHandler struct {
	Service *service.SequenceService
}

func NewSequenceHandler(svc *service.SequenceService) *SequenceHandler {
	return &SequenceHandler{Service: svc}
}

// GetSequenceHandlerWithStats returns the sequence, its steps, enrollment
// progress and outbound message counts.
func (h *SequenceHandler) GetSequenceHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid sequence id", http.StatusBadRequest)
		return
	}

	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	log := logrus.WithField("sequence_id", id)
	log.Debug("Fetching sequence with stats")

	details, err := h.Service.GetSequenceDetailsWithStats(r.Context(), claims.OrgID, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.WithError(err).Error("Failed to fetch sequence")
		http.Error(w, "failed to fetch sequence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}
