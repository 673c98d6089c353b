// internal/worker/delivery.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/leadflow-backend/internal/channel"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/logging"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

// DeliveryWorker hands logged outbound messages to the channel provider.
// Every attempt is appended to outbound_deliveries; the step log itself is
// never touched.
type DeliveryWorker struct {
	Deliveries repository.DeliveryRepositoryInterface
	Leads      repository.LeadRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Senders    *channel.Registry
	Now        func() time.Time
}

func NewDeliveryWorker(
	deliveries repository.DeliveryRepositoryInterface,
	leads repository.LeadRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	senders *channel.Registry,
) *DeliveryWorker {
	return &DeliveryWorker{
		Deliveries: deliveries,
		Leads:      leads,
		Templates:  templates,
		Senders:    senders,
		Now:        time.Now,
	}
}

// Start subscribes the worker to the send topic.
func (w *DeliveryWorker) Start(q queue.Queue) error {
	return q.Subscribe(queue.SendTopic, w.Handle)
}

// Handle delivers one job. A non-nil error asks the queue to retry, so it is
// only returned while the message has not reached the provider and the
// failure may clear on its own.
func (w *DeliveryWorker) Handle(ctx context.Context, job queue.Job) error {
	msg, err := w.Deliveries.GetByID(ctx, job.OutboundMessageID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{
		"outbound_message_id": msg.ID,
		"channel":             msg.Channel,
		"step_order":          msg.StepOrder,
	})

	delivered, err := w.Deliveries.HasDelivered(ctx, msg.ID)
	if err != nil {
		return err
	}
	if delivered {
		log.Info("Message already delivered, dropping redelivery")
		return nil
	}

	sendErr := w.send(ctx, msg)
	if sendErr == nil {
		if err := w.record(ctx, msg, nil); err != nil {
			logging.LogError("delivery_record_failed", err, map[string]interface{}{
				"outbound_message_id": msg.ID,
			})
		}
		log.Info("Message delivered")
		return nil
	}

	if err := w.record(ctx, msg, sendErr); err != nil {
		return err
	}
	logging.LogError("delivery_failed", sendErr, map[string]interface{}{
		"outbound_message_id": msg.ID,
		"channel":             msg.Channel,
	})
	if isPermanent(sendErr) {
		return nil
	}
	return sendErr
}

func (w *DeliveryWorker) send(ctx context.Context, msg *model.OutboundMessage) error {
	rendered, err := w.render(ctx, msg)
	if err != nil {
		return err
	}
	if rendered.To == "" {
		return channel.ErrNoRecipient
	}
	sender, err := w.Senders.Get(msg.Channel)
	if err != nil {
		return err
	}
	return sender.Send(ctx, rendered)
}

// isPermanent is true for failures a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, channel.ErrNoRecipient) ||
		errors.Is(err, channel.ErrUnknownChannel) ||
		appErrors.IsNotFound(err)
}

func (w *DeliveryWorker) render(ctx context.Context, msg *model.OutboundMessage) (channel.Message, error) {
	lead, err := w.Leads.GetByID(ctx, msg.LeadID)
	if err != nil {
		return channel.Message{}, err
	}

	out := channel.Message{CallbackData: "lead_" + lead.ID.String()}
	switch msg.Channel {
	case model.ChannelEmail:
		out.To = lead.Email
	default:
		out.To = lead.Phone
	}

	if msg.TemplateID == nil {
		out.Body = fmt.Sprintf("Step %d", msg.StepOrder)
		return out, nil
	}
	tmpl, err := w.Templates.GetByID(ctx, *msg.TemplateID)
	if err != nil {
		return channel.Message{}, err
	}
	data := service.LeadPlaceholders(lead)
	out.Body = service.RenderTemplate(tmpl.Body, data)
	if tmpl.Subject != nil {
		out.Subject = service.RenderTemplate(*tmpl.Subject, data)
	}
	return out, nil
}

func (w *DeliveryWorker) record(ctx context.Context, msg *model.OutboundMessage, sendErr error) error {
	attempts, err := w.Deliveries.CountDeliveries(ctx, msg.ID)
	if err != nil {
		return err
	}
	d := &model.OutboundDelivery{
		OutboundMessageID: msg.ID,
		Attempt:           attempts + 1,
		Status:            model.DeliveryStatusDelivered,
		AttemptedAt:       w.Now(),
	}
	if sendErr != nil {
		d.Status = model.DeliveryStatusFailed
		d.LastError = sendErr.Error()
	}
	return w.Deliveries.RecordDelivery(ctx, d)
}
