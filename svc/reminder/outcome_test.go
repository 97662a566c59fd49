package reminder_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/remindkit/svc/reminder"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	want := []time.Duration{60, 120, 240, 480, 960, 1920, 3600, 3600, 3600}
	prev := time.Duration(0)
	for k, w := range want {
		got := reminder.Backoff(k)
		assert.Equal(t, w*time.Second, got, "attempt %d", k)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, time.Hour)
		prev = got
	}
	assert.Equal(t, time.Hour, reminder.Backoff(63))
	assert.Equal(t, time.Minute, reminder.Backoff(-1))
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")

	retry := reminder.RetryAfter(time.Minute, cause)
	assert.Equal(t, reminder.OutcomeRetry, retry.Kind)
	assert.True(t, retry.Attempted)
	assert.Equal(t, "boom", retry.Reason)

	early := reminder.NotYetDue(2 * time.Minute)
	assert.Equal(t, reminder.OutcomeRetry, early.Kind)
	assert.False(t, early.Attempted)

	term := reminder.TerminalFailure(cause)
	assert.Equal(t, reminder.OutcomeTerminal, term.Kind)
	assert.ErrorIs(t, term.Err, cause)
	assert.Equal(t, "terminal", term.Kind.String())
	assert.Equal(t, "success", reminder.Success().Kind.String())
}
