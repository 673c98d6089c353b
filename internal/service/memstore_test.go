package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

// memStore is an in-memory AutomationStoreInterface. A transaction holds the
// store mutex for its whole duration and only applies its writes on success.
type memStore struct {
	mu          sync.Mutex
	steps       map[uuid.UUID][]model.SequenceStep
	enrollments map[uuid.UUID]*model.Enrollment
	leads       map[uuid.UUID]bool
	messages    []model.OutboundMessage

	failInsert map[uuid.UUID]bool // keyed by lead
	selectErr  error
	panicFor   map[uuid.UUID]bool // keyed by lead
}

func newMemStore() *memStore {
	return &memStore{
		steps:       map[uuid.UUID][]model.SequenceStep{},
		enrollments: map[uuid.UUID]*model.Enrollment{},
		leads:       map[uuid.UUID]bool{},
		failInsert:  map[uuid.UUID]bool{},
		panicFor:    map[uuid.UUID]bool{},
	}
}

type stepSpec struct {
	offset  int
	channel string
}

func (m *memStore) addSequence(specs ...stepSpec) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	for i, sp := range specs {
		m.steps[id] = append(m.steps[id], model.SequenceStep{
			ID:         uuid.New(),
			SequenceID: id,
			StepOrder:  i + 1,
			OffsetDays: sp.offset,
			Channel:    sp.channel,
		})
	}
	return id
}

// addRawStep attaches a step with an explicit order, for gap scenarios.
func (m *memStore) addRawStep(sequenceID uuid.UUID, order, offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[sequenceID] = append(m.steps[sequenceID], model.SequenceStep{
		ID: uuid.New(), SequenceID: sequenceID, StepOrder: order, OffsetDays: offset, Channel: model.ChannelWhatsApp,
	})
}

func (m *memStore) enroll(sequenceID uuid.UUID, at time.Time) *model.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead := uuid.New()
	m.leads[lead] = true
	e := &model.Enrollment{ID: uuid.New(), LeadID: lead, SequenceID: sequenceID, EnrolledAt: at}
	m.enrollments[e.ID] = e
	return e
}

func (m *memStore) enrollment(id uuid.UUID) model.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.enrollments[id]
}

func (m *memStore) messagesFor(lead uuid.UUID) []model.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OutboundMessage
	for _, msg := range m.messages {
		if msg.LeadID == lead {
			out = append(out, msg)
		}
	}
	return out
}

func (m *memStore) stepAt(sequenceID uuid.UUID, order int) (model.SequenceStep, bool) {
	for _, st := range m.steps[sequenceID] {
		if st.StepOrder == order {
			return st, true
		}
	}
	return model.SequenceStep{}, false
}

func (m *memStore) SelectDue(ctx context.Context, now time.Time) ([]model.DueEnrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selectErr != nil {
		return nil, m.selectErr
	}

	var candidates []*model.Enrollment
	for _, e := range m.enrollments {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EnrolledAt.Before(candidates[j].EnrolledAt)
	})

	due := []model.DueEnrollment{}
	for _, e := range candidates {
		if e.Completed || !m.leads[e.LeadID] {
			continue
		}
		st, ok := m.stepAt(e.SequenceID, e.LastExecutedStep+1)
		if !ok || e.EnrolledAt.AddDate(0, 0, st.OffsetDays).After(now) {
			continue
		}
		due = append(due, model.DueEnrollment{
			EnrollmentID:     e.ID,
			LeadID:           e.LeadID,
			SequenceID:       e.SequenceID,
			LastExecutedStep: e.LastExecutedStep,
			StepOrder:        st.StepOrder,
			Channel:          st.Channel,
			TemplateID:       st.TemplateID,
		})
	}
	return due, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(tx repository.StepTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.messages = append(m.messages, tx.messages...)
	if tx.advance != nil {
		e := m.enrollments[tx.advance.id]
		e.LastExecutedStep = tx.advance.step
		e.Completed = tx.advance.completed
		e.UpdatedAt = &tx.advance.at
	}
	return nil
}

type pendingAdvance struct {
	id        uuid.UUID
	step      int
	completed bool
	at        time.Time
}

type memTx struct {
	store    *memStore
	messages []model.OutboundMessage
	advance  *pendingAdvance
}

func (t *memTx) InsertOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error {
	if t.store.panicFor[msg.LeadID] {
		panic("simulated driver panic")
	}
	if t.store.failInsert[msg.LeadID] {
		return errors.New("simulated store error")
	}
	msg.ID = uuid.New()
	t.messages = append(t.messages, *msg)
	return nil
}

func (t *memTx) CountStepsAfter(ctx context.Context, sequenceID uuid.UUID, stepOrder int) (int, error) {
	n := 0
	for _, st := range t.store.steps[sequenceID] {
		if st.StepOrder > stepOrder {
			n++
		}
	}
	return n, nil
}

func (t *memTx) AdvanceEnrollment(ctx context.Context, id uuid.UUID, expectedStep, executedStep int, completed bool, now time.Time) error {
	e, ok := t.store.enrollments[id]
	if !ok || e.Completed || e.LastExecutedStep != expectedStep {
		return appErrors.ErrStaleCursor
	}
	t.advance = &pendingAdvance{id: id, step: executedStep, completed: completed, at: now}
	return nil
}

var _ repository.AutomationStoreInterface = (*memStore)(nil)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
