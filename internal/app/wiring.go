// internal/app/wiring.go
package app

import (
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/leadflow-backend/internal/channel"
	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
	"github.com/unclebandit/leadflow-backend/internal/worker"
)

// Senders builds the channel registry from config. Channels without
// credentials fall back to a sender that only logs.
func Senders(cfg *config.Config) *channel.Registry {
	r := channel.NewRegistry()

	if cfg.InteraktAPIKey != "" {
		r.Register(model.ChannelWhatsApp, channel.NewWhatsAppSender(cfg.InteraktAPIURL, cfg.InteraktAPIKey))
	} else {
		logrus.Warn("INTERAKT_API_KEY not set, WhatsApp messages will not leave the process")
		r.Register(model.ChannelWhatsApp, &channel.MockSender{})
	}

	if cfg.SMTP.Host != "" {
		r.Register(model.ChannelEmail, channel.NewEmailSender(
			cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From,
		))
	} else {
		logrus.Warn("SMTP_HOST not set, email messages will not leave the process")
		r.Register(model.ChannelEmail, &channel.MockSender{})
	}
	return r
}

func DeliveryWorker(conn *sql.DB, cfg *config.Config) *worker.DeliveryWorker {
	return worker.NewDeliveryWorker(
		&repository.OutboundMessageRepository{DB: conn},
		&repository.LeadRepository{DB: conn},
		&repository.TemplateRepository{DB: conn},
		Senders(cfg),
	)
}

// Queue returns RabbitMQ when AMQP_URL is set and an in-process queue
// otherwise. The close func is always safe to call.
func Queue(cfg *config.Config) (queue.Queue, func(), error) {
	if cfg.AMQPURL == "" {
		q := queue.NewInMemoryQueue()
		q.MaxRetries = cfg.DeliveryMaxRetries
		return q, q.Wait, nil
	}

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		return nil, nil, err
	}
	q.MaxRetries = cfg.DeliveryMaxRetries
	return q, func() {
		if err := q.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close AMQP connection")
		}
	}, nil
}
