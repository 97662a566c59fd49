package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/remindkit/pkg/feature"
	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/svc/notify"
)

type mockChannel struct {
	mock.Mock
	name       string
	applicable bool
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Applicable(notify.Recipient) bool { return m.applicable }

func (m *mockChannel) Send(ctx context.Context, r notify.Recipient, msg notify.Message) bool {
	args := m.Called(ctx, r, msg)
	return args.Bool(0)
}

type panicChannel struct{}

func (panicChannel) Name() string                     { return "panic" }
func (panicChannel) Applicable(notify.Recipient) bool { return true }
func (panicChannel) Send(context.Context, notify.Recipient, notify.Message) bool {
	panic("boom")
}

type deadlineChannel struct {
	deadline time.Duration
}

func (c *deadlineChannel) Name() string                     { return "deadline" }
func (c *deadlineChannel) Applicable(notify.Recipient) bool { return true }
func (c *deadlineChannel) Send(ctx context.Context, _ notify.Recipient, _ notify.Message) bool {
	if dl, ok := ctx.Deadline(); ok {
		c.deadline = time.Until(dl)
	}
	return true
}

type failingProvider struct{}

func (failingProvider) IsEnabled(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func channel(name string, applicable, result bool) *mockChannel {
	ch := &mockChannel{name: name, applicable: applicable}
	if applicable {
		ch.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(result)
	}
	return ch
}

func flags(t *testing.T, enabled bool) feature.Provider {
	t.Helper()
	p, err := feature.NewMemoryProvider(&feature.Flag{Name: notify.FlagMultiChannel, Enabled: enabled})
	require.NoError(t, err)
	return p
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	recipient := notify.Recipient{ID: uuid.New(), Email: "user@example.com", PushToken: "tok"}
	msg := notify.Message{ReminderID: uuid.New(), Text: "stretch", CorrelationID: "cid"}

	tests := []struct {
		name       string
		channels   []*mockChannel
		want       notify.Result
		wantErr    error
		wantCalled []bool
	}{
		{
			name:       "all channels succeed",
			channels:   []*mockChannel{channel("email", true, true), channel("push", true, true)},
			want:       notify.Result{Applicable: 2, Succeeded: 2, Delivered: true},
			wantCalled: []bool{true, true},
		},
		{
			name:       "first fails second still attempted",
			channels:   []*mockChannel{channel("email", true, false), channel("push", true, true)},
			want:       notify.Result{Applicable: 2, Succeeded: 1, Delivered: true},
			wantCalled: []bool{true, true},
		},
		{
			name:       "all fail",
			channels:   []*mockChannel{channel("email", true, false), channel("push", true, false)},
			want:       notify.Result{Applicable: 2},
			wantErr:    notify.ErrAllChannelsFailed,
			wantCalled: []bool{true, true},
		},
		{
			name:       "inapplicable channel is skipped",
			channels:   []*mockChannel{channel("email", false, false), channel("push", true, true)},
			want:       notify.Result{Applicable: 1, Succeeded: 1, Delivered: true},
			wantCalled: []bool{false, true},
		},
		{
			name:       "no applicable channels",
			channels:   []*mockChannel{channel("email", false, false), channel("push", false, false)},
			want:       notify.Result{},
			wantErr:    notify.ErrNoApplicableChannels,
			wantCalled: []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			chs := make([]notify.Channel, len(tt.channels))
			for i, c := range tt.channels {
				chs[i] = c
			}
			d := notify.NewDispatcher(chs, notify.WithFlags(flags(t, true)), notify.WithDispatcherLogger(logger.Discard()))

			res := d.Dispatch(context.Background(), recipient, msg)
			assert.Equal(t, tt.want, res)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err(), tt.wantErr)
			} else {
				assert.NoError(t, res.Err())
			}
			for i, c := range tt.channels {
				if tt.wantCalled[i] {
					c.AssertCalled(t, "Send", mock.Anything, recipient, msg)
				} else {
					c.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
				}
			}
		})
	}
}

func TestDispatcher_FeatureFlag(t *testing.T) {
	t.Parallel()

	recipient := notify.Recipient{ID: uuid.New()}
	msg := notify.Message{ReminderID: uuid.New(), Text: "x"}

	t.Run("disabled flag is a no-op success", func(t *testing.T) {
		t.Parallel()

		ch := channel("push", true, false)
		d := notify.NewDispatcher([]notify.Channel{ch}, notify.WithFlags(flags(t, false)), notify.WithDispatcherLogger(logger.Discard()))

		res := d.Dispatch(context.Background(), recipient, msg)
		assert.True(t, res.Delivered)
		assert.True(t, res.Skipped)
		assert.NoError(t, res.Err())
		ch.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing flag uses default", func(t *testing.T) {
		t.Parallel()

		empty, err := feature.NewMemoryProvider()
		require.NoError(t, err)
		ch := channel("push", true, true)
		d := notify.NewDispatcher([]notify.Channel{ch},
			notify.WithFlags(empty),
			notify.WithMultiChannelDefault(true),
			notify.WithDispatcherLogger(logger.Discard()),
		)
		res := d.Dispatch(context.Background(), recipient, msg)
		assert.False(t, res.Skipped)
		assert.True(t, res.Delivered)
		ch.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("provider error uses default", func(t *testing.T) {
		t.Parallel()

		ch := channel("push", true, true)
		d := notify.NewDispatcher([]notify.Channel{ch},
			notify.WithFlags(failingProvider{}),
			notify.WithMultiChannelDefault(false),
			notify.WithDispatcherLogger(logger.Discard()),
		)
		res := d.Dispatch(context.Background(), recipient, msg)
		assert.True(t, res.Skipped)
		ch.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("env override disables", func(t *testing.T) {
		t.Parallel()

		env := feature.NewEnvProvider(flags(t, true), feature.WithEnvLookup(map[string]string{
			"FEATURE_FLAG_MULTI_CHANNEL_NOTIFICATIONS": "off",
		}))
		ch := channel("push", true, true)
		d := notify.NewDispatcher([]notify.Channel{ch}, notify.WithFlags(env), notify.WithDispatcherLogger(logger.Discard()))
		assert.True(t, d.Dispatch(context.Background(), recipient, msg).Skipped)
	})
}

func TestDispatcher_ChannelIsolation(t *testing.T) {
	t.Parallel()

	t.Run("panic counts as failure", func(t *testing.T) {
		t.Parallel()

		ok := channel("push", true, true)
		d := notify.NewDispatcher([]notify.Channel{panicChannel{}, ok}, notify.WithDispatcherLogger(logger.Discard()))

		var res notify.Result
		require.NotPanics(t, func() {
			res = d.Dispatch(context.Background(), notify.Recipient{}, notify.Message{})
		})
		assert.Equal(t, notify.Result{Applicable: 2, Succeeded: 1, Delivered: true}, res)
	})

	t.Run("each send gets its own timeout", func(t *testing.T) {
		t.Parallel()

		ch := &deadlineChannel{}
		d := notify.NewDispatcher([]notify.Channel{ch},
			notify.WithConfig(notify.Config{MultiChannelDefault: true, SendTimeout: 2 * time.Second}),
			notify.WithDispatcherLogger(logger.Discard()),
		)
		d.Dispatch(context.Background(), notify.Recipient{}, notify.Message{})
		assert.Greater(t, ch.deadline, time.Duration(0))
		assert.LessOrEqual(t, ch.deadline, 2*time.Second)
	})
}
