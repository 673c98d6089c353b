// internal/channel/channel.go
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNoRecipient    = errors.New("recipient address is empty")
	ErrUnknownChannel = errors.New("no sender registered for channel")
)

// Message is one rendered outbound message ready for a provider.
type Message struct {
	To           string
	Subject      string
	Body         string
	CallbackData string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Registry maps a step channel name to the sender that delivers it.
type Registry struct {
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: map[string]Sender{}}
}

func (r *Registry) Register(channel string, s Sender) {
	r.senders[channel] = s
}

func (r *Registry) Get(channel string) (Sender, error) {
	s, ok := r.senders[channel]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownChannel, channel)
	}
	return s, nil
}

// MockSender records messages instead of sending them. Fail, when set, decides
// per message whether the send errors.
type MockSender struct {
	mu   sync.Mutex
	Sent []Message
	Fail func(Message) error
}

func (m *MockSender) Send(ctx context.Context, msg Message) error {
	if m.Fail != nil {
		if err := m.Fail(msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

func (m *MockSender) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
