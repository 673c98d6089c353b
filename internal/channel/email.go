package channel

import (
	"context"

	"gopkg.in/gomail.v2"
)

// Dialer is the part of gomail.Dialer the email sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	Dialer Dialer
	From   string
}

func NewEmailSender(host string, port int, username, password, from string) *EmailSender {
	return &EmailSender{
		Dialer: gomail.NewDialer(host, port, username, password),
		From:   from,
	}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return s.Dialer.DialAndSend(m)
}
