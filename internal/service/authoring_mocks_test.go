package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

// authoringRepo backs every repository the authoring and auth services need.
type authoringRepo struct {
	mu          sync.Mutex
	sequences   map[uuid.UUID]*model.Sequence
	enrollments map[uuid.UUID]*model.Enrollment
	templates   map[uuid.UUID]*model.MessageTemplate
	leads       map[uuid.UUID]*model.Lead
	users       map[string]*model.User
	messages    map[uuid.UUID]map[string]int
}

func newAuthoringRepo() *authoringRepo {
	return &authoringRepo{
		sequences:   map[uuid.UUID]*model.Sequence{},
		enrollments: map[uuid.UUID]*model.Enrollment{},
		templates:   map[uuid.UUID]*model.MessageTemplate{},
		leads:       map[uuid.UUID]*model.Lead{},
		users:       map[string]*model.User{},
		messages:    map[uuid.UUID]map[string]int{},
	}
}

func (r *authoringRepo) addLead(org uuid.UUID, first, last string) *model.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := &model.Lead{ID: uuid.New(), OrgID: org, FirstName: first, LastName: last, Phone: "+91 98765 43210"}
	r.leads[l.ID] = l
	return l
}

// Sequences

func (r *authoringRepo) Create(ctx context.Context, s *model.Sequence) error {
	return r.CreateSequence(ctx, s)
}

func (r *authoringRepo) CreateSequence(ctx context.Context, s *model.Sequence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	for i := range s.Steps {
		s.Steps[i].ID = uuid.New()
		s.Steps[i].SequenceID = s.ID
	}
	r.sequences[s.ID] = s
	return nil
}

func (r *authoringRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[id]
	if !ok {
		return nil, appErrors.NewSequenceNotFound(id)
	}
	return s, nil
}

func (r *authoringRepo) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]model.SequenceStep, error) {
	s, err := r.GetByID(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	return s.Steps, nil
}

func (r *authoringRepo) CountStepsAfter(ctx context.Context, sequenceID uuid.UUID, stepOrder int) (int, error) {
	steps, err := r.ListSteps(ctx, sequenceID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range steps {
		if st.StepOrder > stepOrder {
			n++
		}
	}
	return n, nil
}

func (r *authoringRepo) EnrollmentStats(ctx context.Context, sequenceID uuid.UUID) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"total": 0, "active": 0, "completed": 0}
	for _, e := range r.enrollments {
		if e.SequenceID != sequenceID {
			continue
		}
		stats["total"]++
		if e.Completed {
			stats["completed"]++
		} else {
			stats["active"]++
		}
	}
	return stats, nil
}

func (r *authoringRepo) CountByStatusForSequence(ctx context.Context, sequenceID uuid.UUID) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"total": 0, model.MessageStatusSent: 0}
	for status, n := range r.messages[sequenceID] {
		stats[status] = n
		stats["total"] += n
	}
	return stats, nil
}

// Enrollments

type enrollmentRepo struct{ *authoringRepo }

func (r enrollmentRepo) Enroll(ctx context.Context, leadID, sequenceID uuid.UUID) (*model.Enrollment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.LeadID == leadID && e.SequenceID == sequenceID {
			return e, false, nil
		}
	}
	e := &model.Enrollment{ID: uuid.New(), LeadID: leadID, SequenceID: sequenceID, EnrolledAt: time.Now()}
	r.enrollments[e.ID] = e
	return e, true, nil
}

func (r enrollmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return nil, appErrors.NewEnrollmentNotFound(id)
	}
	return e, nil
}

func (r enrollmentRepo) SelectDue(ctx context.Context, now time.Time) ([]model.DueEnrollment, error) {
	return nil, nil
}

func (r enrollmentRepo) Advance(ctx context.Context, id uuid.UUID, expectedStep, executedStep int, completed bool, now time.Time) error {
	return nil
}

// Templates

type templateRepo struct{ *authoringRepo }

func (r templateRepo) Create(ctx context.Context, t *model.MessageTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	r.templates[t.ID] = t
	return nil
}

func (r templateRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, &appErrors.ErrNotFound{Kind: "template", ID: id.String()}
	}
	return t, nil
}

// Leads

type leadRepo struct{ *authoringRepo }

func (r leadRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, appErrors.NewLeadNotFound(id)
	}
	return l, nil
}

// Users

type userRepo struct{ *authoringRepo }

func (r userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[email], nil
}

func (r userRepo) Create(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.ID = uuid.New()
	r.users[u.Email] = u
	return nil
}
