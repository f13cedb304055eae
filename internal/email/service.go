package email

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// Notifier delivers appointment notifications to guests. Delivery failures
// are logged by callers, never propagated into lifecycle transitions.
type Notifier interface {
	SendRescheduleNotice(ctx context.Context, to string, oldTime, newTime time.Time) error
	SendNoShowNotice(ctx context.Context, to string, scheduledAt time.Time) error
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type smtpNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPNotifier(cfg SMTPConfig) Notifier {
	return &smtpNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (n *smtpNotifier) SendRescheduleNotice(ctx context.Context, to string, oldTime, newTime time.Time) error {
	subject := "Your appointment has been rescheduled"
	body := fmt.Sprintf(
		"Your appointment originally scheduled for %s has been moved to %s.",
		oldTime.Format(time.RFC1123), newTime.Format(time.RFC1123),
	)
	return n.send(to, subject, body)
}

func (n *smtpNotifier) SendNoShowNotice(ctx context.Context, to string, scheduledAt time.Time) error {
	subject := "Missed appointment"
	body := fmt.Sprintf(
		"You did not attend your appointment scheduled for %s. Please book a new one.",
		scheduledAt.Format(time.RFC1123),
	)
	return n.send(to, subject, body)
}

func (n *smtpNotifier) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type noopNotifier struct{}

// NewNoopNotifier returns a Notifier that drops all notifications. Used
// when SMTP is not configured and in tests.
func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) SendRescheduleNotice(ctx context.Context, to string, oldTime, newTime time.Time) error {
	return nil
}

func (noopNotifier) SendNoShowNotice(ctx context.Context, to string, scheduledAt time.Time) error {
	return nil
}
