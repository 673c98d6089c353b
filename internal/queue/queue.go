package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SendTopic carries outbound messages that are ready for provider delivery.
const SendTopic = "automation_sends"

// Job is the payload published once a step's outbound message is committed.
type Job struct {
	OutboundMessageID uuid.UUID `json:"outbound_message_id"`
}

type Handler func(ctx context.Context, job Job) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, job Job) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers jobs to subscribers on goroutines with retry. It is
// used when no broker is configured and in tests.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	MaxRetries int
	RetryDelay time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// jobAttempt wraps a message payload with retry info
type jobAttempt struct {
	Job        Job
	RetryCount int
	MaxRetries int
}

// Publish sends a job to all subscribers of topic
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, job Job) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.processJob(context.WithoutCancel(ctx), h, jobAttempt{Job: job, MaxRetries: q.MaxRetries})
		}(handler)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, attempt jobAttempt) {
	log := logrus.WithField("outbound_message_id", attempt.Job.OutboundMessageID)
	for attempt.RetryCount <= attempt.MaxRetries {
		err := handler(ctx, attempt.Job)
		if err == nil {
			log.Debug("Job processed successfully")
			return
		}

		attempt.RetryCount++
		log.WithError(err).Warnf("Job failed (attempt %d/%d)", attempt.RetryCount, attempt.MaxRetries)

		if attempt.RetryCount > attempt.MaxRetries {
			log.Errorf("Job permanently failed after %d attempts", attempt.MaxRetries)
			return
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(attempt.RetryCount) * q.RetryDelay)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished, retries included.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}
