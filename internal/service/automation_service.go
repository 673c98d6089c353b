// internal/service/automation_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/lock"
	"github.com/unclebandit/leadflow-backend/internal/logging"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

// TriggerLockKey names the lease held for the duration of one RunDue.
const TriggerLockKey = "leadflow:automation:trigger"

type StepStatus string

const (
	StepExecuted StepStatus = "executed"
	StepSkipped  StepStatus = "skipped" // cursor moved under us, another run got there first
	StepFailed   StepStatus = "failed"
)

// AutomationService selects due enrollments and advances them one step.
// Queue and Locker are optional.
type AutomationService struct {
	Store    repository.AutomationStoreInterface
	Queue    queue.Queue
	Locker   lock.Locker
	Workers  int
	LeaseTTL time.Duration
	Now      func() time.Time
}

type StepOutcome struct {
	EnrollmentID string     `json:"enrollment_id"`
	StepOrder    int        `json:"step_order"`
	Status       StepStatus `json:"status"`
	Completed    bool       `json:"completed"`
	MessageID    string     `json:"message_id,omitempty"`
	Published    bool       `json:"-"`
	Err          error      `json:"-"`
}

type EnrollmentFailure struct {
	EnrollmentID string `json:"enrollment_id"`
	StepOrder    int    `json:"step_order"`
	Error        string `json:"error"`
}

// RunResult summarises one trigger invocation.
type RunResult struct {
	Processed int                 `json:"processed"`
	Failed    int                 `json:"failed"`
	Skipped   int                 `json:"skipped"`
	LeaseHeld bool                `json:"lease_held,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Failures  []EnrollmentFailure `json:"failures"`
}

func (s *AutomationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *AutomationService) workers() int {
	if s.Workers < 1 {
		return 1
	}
	return s.Workers
}

func (s *AutomationService) leaseTTL() time.Duration {
	if s.LeaseTTL <= 0 {
		return 5 * time.Minute
	}
	return s.LeaseTTL
}

// SelectDue returns the enrollments whose next step is due at now.
func (s *AutomationService) SelectDue(ctx context.Context, now time.Time) ([]model.DueEnrollment, error) {
	due, err := s.Store.SelectDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("select due enrollments: %w", err)
	}
	return due, nil
}

// ExecuteStep logs the outbound message, works out completion and advances the
// cursor in one transaction. The cursor update is conditional on the value the
// selector saw; if it moved, the whole transaction is rolled back and the step
// is reported as skipped.
func (s *AutomationService) ExecuteStep(ctx context.Context, due model.DueEnrollment, now time.Time) StepOutcome {
	outcome := StepOutcome{
		EnrollmentID: due.EnrollmentID.String(),
		StepOrder:    due.StepOrder,
	}

	enrollmentID := due.EnrollmentID
	msg := &model.OutboundMessage{
		EnrollmentID: &enrollmentID,
		LeadID:       due.LeadID,
		Channel:      due.Channel,
		TemplateID:   due.TemplateID,
		StepOrder:    due.StepOrder,
		Status:       model.MessageStatusSent,
		SentAt:       now,
	}

	var completed bool
	err := s.Store.InTx(ctx, func(tx repository.StepTx) error {
		if err := tx.InsertOutboundMessage(ctx, msg); err != nil {
			return fmt.Errorf("log outbound message: %w", err)
		}
		remaining, err := tx.CountStepsAfter(ctx, due.SequenceID, due.StepOrder)
		if err != nil {
			return fmt.Errorf("count remaining steps: %w", err)
		}
		completed = remaining == 0
		return tx.AdvanceEnrollment(ctx, due.EnrollmentID, due.LastExecutedStep, due.StepOrder, completed, now)
	})

	log := logrus.WithFields(logrus.Fields{
		"enrollment_id": outcome.EnrollmentID,
		"step_order":    due.StepOrder,
		"channel":       due.Channel,
	})

	switch {
	case errors.Is(err, appErrors.ErrStaleCursor):
		outcome.Status = StepSkipped
		log.Info("Step already executed by a concurrent run, skipping")
		return outcome
	case err != nil:
		outcome.Status = StepFailed
		outcome.Err = err
		logging.LogError("step_execution", err, map[string]interface{}{
			"enrollment_id": outcome.EnrollmentID,
			"step_order":    due.StepOrder,
		})
		return outcome
	}

	outcome.Status = StepExecuted
	outcome.Completed = completed
	outcome.MessageID = msg.ID.String()
	log.WithField("completed", completed).Info("✅ Step executed")

	if s.Queue != nil {
		if err := s.Queue.Publish(ctx, queue.SendTopic, queue.Job{OutboundMessageID: msg.ID}); err != nil {
			log.WithError(err).Warn("⚠️ failed to enqueue outbound message for delivery")
		} else {
			outcome.Published = true
		}
	}
	return outcome
}

// executeIsolated keeps a panic in one enrollment from taking down the batch.
func (s *AutomationService) executeIsolated(ctx context.Context, due model.DueEnrollment, now time.Time) (outcome StepOutcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = StepOutcome{
				EnrollmentID: due.EnrollmentID.String(),
				StepOrder:    due.StepOrder,
				Status:       StepFailed,
				Err:          fmt.Errorf("panic executing step: %v", p),
			}
		}
	}()
	return s.ExecuteStep(ctx, due, now)
}

// RunDue is one trigger invocation: select once, execute every due
// enrollment independently, report the tally. Only a selection or lease
// error is returned; per-enrollment failures are folded into the result.
func (s *AutomationService) RunDue(ctx context.Context) (*RunResult, error) {
	now := s.now()
	result := &RunResult{Timestamp: now, Failures: []EnrollmentFailure{}}

	if s.Locker != nil {
		release, ok, err := s.Locker.TryLock(ctx, TriggerLockKey, s.leaseTTL())
		if err != nil {
			return nil, fmt.Errorf("acquire trigger lease: %w", err)
		}
		if !ok {
			result.LeaseHeld = true
			logrus.Info("Automation run already in progress, skipping")
			return result, nil
		}
		defer release()
	}

	due, err := s.SelectDue(ctx, now)
	if err != nil {
		return nil, err
	}

	outcomes := make([]StepOutcome, len(due))
	var g errgroup.Group
	g.SetLimit(s.workers())
	for i := range due {
		i := i
		g.Go(func() error {
			outcomes[i] = s.executeIsolated(ctx, due[i], now)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o.Status {
		case StepExecuted:
			result.Processed++
		case StepSkipped:
			result.Skipped++
		case StepFailed:
			result.Failed++
			result.Failures = append(result.Failures, EnrollmentFailure{
				EnrollmentID: o.EnrollmentID,
				StepOrder:    o.StepOrder,
				Error:        o.Err.Error(),
			})
		}
	}

	logging.LogEvent("automation_run", map[string]interface{}{
		"due":       len(due),
		"processed": result.Processed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	})
	return result, nil
}
