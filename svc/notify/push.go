package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/pkg/push"
)

// Push channel name and the default notification title.
const (
	ChannelPush      = "push"
	DefaultPushTitle = "Reminder"
)

// PushSender is implemented by *push.Client.
type PushSender interface {
	Configured() bool
	Send(ctx context.Context, msg push.Message) error
}

// PushChannel sends the reminder to the user's registered device.
type PushChannel struct {
	client PushSender
	title  string
	logger *slog.Logger
}

// PushOption configures a PushChannel.
type PushOption func(*PushChannel)

// WithPushTitle overrides DefaultPushTitle.
func WithPushTitle(title string) PushOption {
	return func(c *PushChannel) {
		if title != "" {
			c.title = title
		}
	}
}

func WithPushLogger(l *slog.Logger) PushOption {
	return func(c *PushChannel) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewPushChannel creates a push channel over client.
func NewPushChannel(client PushSender, opts ...PushOption) *PushChannel {
	c := &PushChannel{
		client: client,
		title:  DefaultPushTitle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PushChannel) Name() string { return ChannelPush }

// Applicable requires a configured client and a push token.
func (c *PushChannel) Applicable(r Recipient) bool {
	return c.client != nil && c.client.Configured() && strings.TrimSpace(r.PushToken) != ""
}

func (c *PushChannel) Send(ctx context.Context, r Recipient, msg Message) bool {
	err := c.client.Send(ctx, push.Message{
		To:    r.PushToken,
		Title: c.title,
		Body:  msg.Text,
		Data:  map[string]any{"reminder_id": msg.ReminderID.String()},
	})
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "failed to send reminder push",
			logger.Channel(ChannelPush),
			logger.ReminderID(msg.ReminderID),
			logger.UserID(r.ID),
			logger.CorrelationID(msg.CorrelationID),
			logger.Error(err),
		)
		return false
	}
	return true
}
