// internal/controller/automation_controller.go
package controller

import (
	"net/http"
	"time"

	"github.com/unclebandit/leadflow-backend/internal/service"
)

type AutomationController struct {
	AutomationService *service.AutomationService
}

type triggerResponse struct {
	Processed int                         `json:"processed"`
	Failed    int                         `json:"failed"`
	Skipped   int                         `json:"skipped"`
	LeaseHeld bool                        `json:"lease_held,omitempty"`
	Timestamp string                      `json:"timestamp"`
	Failures  []service.EnrollmentFailure `json:"failures"`
}

// Trigger runs one batch of due steps. Only a failed selection is a 500;
// per-enrollment failures are reported in the body.
func (c *AutomationController) Trigger(w http.ResponseWriter, r *http.Request) {
	res, err := c.AutomationService.RunDue(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	failures := res.Failures
	if failures == nil {
		failures = []service.EnrollmentFailure{}
	}
	writeJSON(w, http.StatusOK, triggerResponse{
		Processed: res.Processed,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		LeaseHeld: res.LeaseHeld,
		Timestamp: res.Timestamp.UTC().Format(time.RFC3339),
		Failures:  failures,
	})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
