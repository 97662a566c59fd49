package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/remindkit/pkg/email"
	"github.com/dmitrymomot/remindkit/pkg/logger"
)

// Email channel name and the default subject line.
const (
	ChannelEmail        = "email"
	DefaultEmailSubject = "AI Companion Reminder"
)

// EmailChannel sends the reminder text as a plain-text email.
type EmailChannel struct {
	sender  email.EmailSender
	subject string
	logger  *slog.Logger
}

// EmailOption configures an EmailChannel.
type EmailOption func(*EmailChannel)

// WithEmailSubject overrides DefaultEmailSubject.
func WithEmailSubject(subject string) EmailOption {
	return func(c *EmailChannel) {
		if subject != "" {
			c.subject = subject
		}
	}
}

func WithEmailLogger(l *slog.Logger) EmailOption {
	return func(c *EmailChannel) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewEmailChannel creates an email channel. A nil sender means no provider
// is configured, and the channel never applies.
func NewEmailChannel(sender email.EmailSender, opts ...EmailOption) *EmailChannel {
	c := &EmailChannel{
		sender:  sender,
		subject: DefaultEmailSubject,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EmailChannel) Name() string { return ChannelEmail }

// Applicable requires a configured sender and an email address.
func (c *EmailChannel) Applicable(r Recipient) bool {
	return c.sender != nil && strings.TrimSpace(r.Email) != ""
}

// Send mails msg.Text. Failures are logged and reported as false.
func (c *EmailChannel) Send(ctx context.Context, r Recipient, msg Message) bool {
	err := c.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   r.Email,
		Subject:  c.subject,
		BodyText: msg.Text,
		Tag:      "reminder",
	})
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "failed to send reminder email",
			logger.Channel(ChannelEmail),
			logger.ReminderID(msg.ReminderID),
			logger.UserID(r.ID),
			logger.CorrelationID(msg.CorrelationID),
			logger.Error(err),
		)
		return false
	}
	return true
}
