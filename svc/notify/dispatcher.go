package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/remindkit/pkg/feature"
	"github.com/dmitrymomot/remindkit/pkg/logger"
)

// FlagMultiChannel gates all channel sends.
const FlagMultiChannel = "multi_channel_notifications"

// Dispatcher calls every applicable channel for a recipient.
type Dispatcher struct {
	channels       []Channel
	flags          feature.Provider
	defaultEnabled bool
	sendTimeout    time.Duration
	logger         *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithFlags sets the provider consulted for FlagMultiChannel.
func WithFlags(p feature.Provider) DispatcherOption {
	return func(d *Dispatcher) {
		d.flags = p
	}
}

// WithMultiChannelDefault sets the value used when the flag cannot be read.
func WithMultiChannelDefault(enabled bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultEnabled = enabled
	}
}

// WithSendTimeout bounds each channel's Send call.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithDispatcherLogger sets the logger for channel failures and panics.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithConfig applies the flag default and send timeout from cfg.
func WithConfig(cfg Config) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultEnabled = cfg.MultiChannelDefault
		if cfg.SendTimeout > 0 {
			d.sendTimeout = cfg.SendTimeout
		}
	}
}

// NewDispatcher fans out to channels in the given order. The multi-channel
// flag defaults to enabled and each send is bounded by 10s.
func NewDispatcher(channels []Channel, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channels:       channels,
		defaultEnabled: true,
		sendTimeout:    10 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends msg through every channel applicable to r.
// One channel failing never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, r Recipient, msg Message) Result {
	if !d.multiChannelEnabled(ctx) {
		d.logger.LogAttrs(ctx, slog.LevelInfo, "multi-channel notifications disabled via feature flag",
			logger.ReminderID(msg.ReminderID),
			logger.CorrelationID(msg.CorrelationID),
		)
		return Result{Delivered: true, Skipped: true}
	}

	var res Result
	for _, ch := range d.channels {
		if !ch.Applicable(r) {
			continue
		}
		res.Applicable++
		if d.send(ctx, ch, r, msg) {
			res.Succeeded++
		}
	}
	res.Delivered = res.Succeeded > 0

	if res.Applicable == 0 {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "no notification channels available",
			logger.UserID(r.ID),
			logger.ReminderID(msg.ReminderID),
			logger.CorrelationID(msg.CorrelationID),
		)
	} else if !res.Delivered {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "all notification channels failed",
			logger.UserID(r.ID),
			logger.ReminderID(msg.ReminderID),
			logger.CorrelationID(msg.CorrelationID),
			slog.Int("channels", res.Applicable),
		)
	}
	return res
}

func (d *Dispatcher) multiChannelEnabled(ctx context.Context) bool {
	if d.flags == nil {
		return d.defaultEnabled
	}
	enabled, err := d.flags.IsEnabled(ctx, FlagMultiChannel)
	if err != nil {
		if !errors.Is(err, feature.ErrFlagNotFound) {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "failed to read feature flag, using default",
				slog.String("flag", FlagMultiChannel),
				slog.Bool("default", d.defaultEnabled),
				logger.Error(err),
			)
		}
		return d.defaultEnabled
	}
	return enabled
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, r Recipient, msg Message) (ok bool) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "notification channel panicked",
				logger.Channel(ch.Name()),
				logger.ReminderID(msg.ReminderID),
				logger.CorrelationID(msg.CorrelationID),
				logger.Error(fmt.Errorf("panic: %v", p)),
			)
			ok = false
		}
	}()

	return ch.Send(ctx, r, msg)
}
