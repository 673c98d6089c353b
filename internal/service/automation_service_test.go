package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/leadflow-backend/internal/lock"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func newEngine(store *memStore, c *clock) *service.AutomationService {
	return &service.AutomationService{Store: store, Now: c.Now}
}

func TestRunDueExecutesOnlyTheFirstStepRightAfterEnrollment(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(
		stepSpec{0, model.ChannelWhatsApp},
		stepSpec{1, model.ChannelWhatsApp},
		stepSpec{2, model.ChannelEmail},
	)
	e := store.enroll(seq, t0)
	c := &clock{now: t0}

	res, err := newEngine(store, c).RunDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)

	got := store.enrollment(e.ID)
	require.Equal(t, 1, got.LastExecutedStep)
	require.False(t, got.Completed)
}

func TestRunDueCompletionIsMonotone(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(
		stepSpec{0, model.ChannelWhatsApp},
		stepSpec{1, model.ChannelWhatsApp},
		stepSpec{2, model.ChannelWhatsApp},
	)
	e := store.enroll(seq, t0)
	c := &clock{now: t0}
	engine := newEngine(store, c)

	for i, wantCompleted := range []bool{false, false, true} {
		c.Set(t0.Add(time.Duration(i) * day))
		res, err := engine.RunDue(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, res.Processed, "run %d", i+1)
		require.Equal(t, wantCompleted, store.enrollment(e.ID).Completed, "run %d", i+1)
	}

	c.Set(t0.Add(30 * day))
	due, err := engine.SelectDue(context.Background(), c.Now())
	require.NoError(t, err)
	require.Empty(t, due)

	res, err := engine.RunDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.Processed)
	require.Equal(t, 3, store.enrollment(e.ID).LastExecutedStep)
}

func TestRunDueIsIdempotentAtRest(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp}, stepSpec{3, model.ChannelEmail})
	for i := 0; i < 4; i++ {
		store.enroll(seq, t0.Add(-time.Duration(i)*time.Minute))
	}
	engine := newEngine(store, &clock{now: t0})

	first, err := engine.RunDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, first.Processed)

	second, err := engine.RunDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Processed)
	require.Equal(t, 0, second.Skipped)
}

func TestExecuteStepLogsExactlyOneSentMessage(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp}, stepSpec{0, model.ChannelEmail})
	e := store.enroll(seq, t0)
	engine := newEngine(store, &clock{now: t0})

	for i := 0; i < 2; i++ {
		_, err := engine.RunDue(context.Background())
		require.NoError(t, err)
	}

	msgs := store.messagesFor(e.LeadID)
	require.Len(t, msgs, 2)
	for i, msg := range msgs {
		require.Equal(t, model.MessageStatusSent, msg.Status)
		require.Equal(t, i+1, msg.StepOrder)
		require.Equal(t, t0, msg.SentAt)
		require.Equal(t, e.ID, *msg.EnrollmentID)
	}
	require.Equal(t, model.ChannelWhatsApp, msgs[0].Channel)
	require.Equal(t, model.ChannelEmail, msgs[1].Channel)
}

func TestRunDueIsolatesPerEnrollmentFailures(t *testing.T) {
	for _, workers := range []int{1, 4} {
		store := newMemStore()
		seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp}, stepSpec{1, model.ChannelWhatsApp})
		ok1 := store.enroll(seq, t0.Add(-3*time.Minute))
		bad := store.enroll(seq, t0.Add(-2*time.Minute))
		ok2 := store.enroll(seq, t0.Add(-time.Minute))
		store.failInsert[bad.LeadID] = true

		engine := newEngine(store, &clock{now: t0})
		engine.Workers = workers

		res, err := engine.RunDue(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, res.Processed)
		require.Equal(t, 1, res.Failed)
		require.Len(t, res.Failures, 1)
		require.Equal(t, bad.ID.String(), res.Failures[0].EnrollmentID)
		require.Contains(t, res.Failures[0].Error, "simulated store error")

		require.Equal(t, 1, store.enrollment(ok1.ID).LastExecutedStep)
		require.Equal(t, 1, store.enrollment(ok2.ID).LastExecutedStep)
		require.Equal(t, 0, store.enrollment(bad.ID).LastExecutedStep)
		require.Empty(t, store.messagesFor(bad.LeadID))

		// the failed enrollment is picked up again once the store recovers
		store.failInsert[bad.LeadID] = false
		res, err = engine.RunDue(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, res.Processed)
		require.Equal(t, 1, store.enrollment(bad.ID).LastExecutedStep)
	}
}

func TestRunDueRecoversFromPanicInOneEnrollment(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp})
	boom := store.enroll(seq, t0.Add(-time.Minute))
	fine := store.enroll(seq, t0)
	store.panicFor[boom.LeadID] = true

	res, err := newEngine(store, &clock{now: t0}).RunDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, 1, res.Failed)
	require.True(t, store.enrollment(fine.ID).Completed)
}

func TestWelcomeSequenceScenario(t *testing.T) {
	store := newMemStore()
	welcome := store.addSequence(
		stepSpec{0, model.ChannelWhatsApp},
		stepSpec{2, model.ChannelWhatsApp},
		stepSpec{5, model.ChannelEmail},
	)
	lead := store.enroll(welcome, t0)
	c := &clock{}
	engine := newEngine(store, c)

	type checkpoint struct {
		at            time.Time
		processed     int
		lastStep      int
		completed     bool
		lastChannel   string
		totalMessages int
	}
	checkpoints := []checkpoint{
		{t0, 1, 1, false, model.ChannelWhatsApp, 1},
		{t0.Add(1 * day), 0, 1, false, model.ChannelWhatsApp, 1},
		{t0.Add(2 * day), 1, 2, false, model.ChannelWhatsApp, 2},
		{t0.Add(5 * day), 1, 3, true, model.ChannelEmail, 3},
		{t0.Add(6 * day), 0, 3, true, model.ChannelEmail, 3},
	}

	for _, cp := range checkpoints {
		c.Set(cp.at)
		res, err := engine.RunDue(context.Background())
		require.NoError(t, err)
		require.Equal(t, cp.processed, res.Processed, "at %s", cp.at)

		got := store.enrollment(lead.ID)
		require.Equal(t, cp.lastStep, got.LastExecutedStep, "at %s", cp.at)
		require.Equal(t, cp.completed, got.Completed, "at %s", cp.at)

		msgs := store.messagesFor(lead.LeadID)
		require.Len(t, msgs, cp.totalMessages)
		require.Equal(t, cp.lastChannel, msgs[len(msgs)-1].Channel)
	}
}

func TestOverdueEnrollmentAdvancesOneStepPerRun(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp}, stepSpec{1, model.ChannelWhatsApp}, stepSpec{2, model.ChannelEmail})
	e := store.enroll(seq, t0)
	engine := newEngine(store, &clock{now: t0.Add(10 * day)})

	due, err := engine.SelectDue(context.Background(), t0.Add(10*day))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 1, due[0].StepOrder)

	for want := 1; want <= 3; want++ {
		_, err := engine.RunDue(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, store.enrollment(e.ID).LastExecutedStep)
	}
	require.True(t, store.enrollment(e.ID).Completed)
}

func TestSelectDueExcludesGapsAndMissingLeads(t *testing.T) {
	store := newMemStore()
	gapped := store.addSequence(stepSpec{0, model.ChannelWhatsApp})
	store.addRawStep(gapped, 3, 0)
	e := store.enroll(gapped, t0)

	orphanSeq := store.addSequence(stepSpec{0, model.ChannelWhatsApp})
	orphan := store.enroll(orphanSeq, t0)
	delete(store.leads, orphan.LeadID)

	engine := newEngine(store, &clock{now: t0})
	res, err := engine.RunDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)

	// step 2 is missing: the enrollment stalls rather than skipping ahead,
	// and is not completed because step 3 exists
	got := store.enrollment(e.ID)
	require.Equal(t, 1, got.LastExecutedStep)
	require.False(t, got.Completed)

	due, err := engine.SelectDue(context.Background(), t0.Add(day))
	require.NoError(t, err)
	require.Empty(t, due)
	require.Equal(t, 0, store.enrollment(orphan.ID).LastExecutedStep)
}

func TestExecuteStepLostRaceRollsBackLog(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp}, stepSpec{1, model.ChannelWhatsApp})
	e := store.enroll(seq, t0)
	engine := newEngine(store, &clock{now: t0})

	due, err := engine.SelectDue(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	first := engine.ExecuteStep(context.Background(), due[0], t0)
	second := engine.ExecuteStep(context.Background(), due[0], t0)

	require.Equal(t, service.StepExecuted, first.Status)
	require.Equal(t, service.StepSkipped, second.Status)
	require.NoError(t, second.Err)
	require.Len(t, store.messagesFor(e.LeadID), 1)
	require.Equal(t, 1, store.enrollment(e.ID).LastExecutedStep)
}

func TestConcurrentTriggersNeverDoubleExecute(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp}, stepSpec{1, model.ChannelWhatsApp})
	var enrollments []*model.Enrollment
	for i := 0; i < 20; i++ {
		enrollments = append(enrollments, store.enroll(seq, t0.Add(-time.Duration(i)*time.Second)))
	}
	// no lease: only the conditional cursor update guards against overlap
	engine := newEngine(store, &clock{now: t0})
	engine.Workers = 4

	var wg sync.WaitGroup
	results := make([]*service.RunResult, 5)
	errs := make([]error, 5)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = engine.RunDue(context.Background())
		}()
	}
	wg.Wait()

	processed := 0
	for i, r := range results {
		require.NoError(t, errs[i])
		processed += r.Processed
	}
	require.Equal(t, 20, processed)
	for _, e := range enrollments {
		require.Len(t, store.messagesFor(e.LeadID), 1)
		require.Equal(t, 1, store.enrollment(e.ID).LastExecutedStep)
	}
}

func TestRunDueSkipsWhenLeaseHeld(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp})
	e := store.enroll(seq, t0)

	locker := lock.NewLocalLocker()
	release, ok, err := locker.TryLock(context.Background(), service.TriggerLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	engine := newEngine(store, &clock{now: t0})
	engine.Locker = locker

	res, err := engine.RunDue(context.Background())
	require.NoError(t, err)
	require.True(t, res.LeaseHeld)
	require.Equal(t, 0, res.Processed)
	require.Equal(t, 0, store.enrollment(e.ID).LastExecutedStep)

	release()
	res, err = engine.RunDue(context.Background())
	require.NoError(t, err)
	require.False(t, res.LeaseHeld)
	require.Equal(t, 1, res.Processed)
}

func TestRunDueSelectionErrorIsFatal(t *testing.T) {
	store := newMemStore()
	store.selectErr = errors.New("connection refused")

	res, err := newEngine(store, &clock{now: t0}).RunDue(context.Background())
	require.Error(t, err)
	require.Nil(t, res)
	require.Contains(t, err.Error(), "connection refused")
}

type failingQueue struct{}

func (failingQueue) Publish(ctx context.Context, topic string, job queue.Job) error {
	return errors.New("broker down")
}

func (failingQueue) Subscribe(topic string, handler queue.Handler) error { return nil }

func TestPublishFailureDoesNotFailStep(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp})
	e := store.enroll(seq, t0)
	engine := newEngine(store, &clock{now: t0})
	engine.Queue = failingQueue{}

	res, err := engine.RunDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, 0, res.Failed)
	require.True(t, store.enrollment(e.ID).Completed)
}

func TestExecutedStepsArePublishedForDelivery(t *testing.T) {
	store := newMemStore()
	seq := store.addSequence(stepSpec{0, model.ChannelWhatsApp})
	e := store.enroll(seq, t0)

	q := queue.NewInMemoryQueue()
	var mu sync.Mutex
	var published []uuid.UUID
	require.NoError(t, q.Subscribe(queue.SendTopic, func(ctx context.Context, job queue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, job.OutboundMessageID)
		return nil
	}))

	engine := newEngine(store, &clock{now: t0})
	engine.Queue = q
	_, err := engine.RunDue(context.Background())
	require.NoError(t, err)
	q.Wait()

	msgs := store.messagesFor(e.LeadID)
	require.Len(t, msgs, 1)
	require.Equal(t, []uuid.UUID{msgs[0].ID}, published)
}
