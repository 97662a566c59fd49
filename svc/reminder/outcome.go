package reminder

import "time"

// OutcomeKind classifies a delivery attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetry
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome tells the queue layer what to do after one delivery attempt.
type Outcome struct {
	Kind  OutcomeKind
	Delay time.Duration
	// Attempted is false when the reminder was picked up early and no
	// delivery was tried, so the retry does not count against the budget.
	Attempted bool
	Reason    string
	Err       error
	// CorrelationID is the id the attempt logged under.
	CorrelationID string
}

// Success means there is nothing left to do for this task.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// RetryAfter asks for another attempt after d.
func RetryAfter(d time.Duration, cause error) Outcome {
	o := Outcome{Kind: OutcomeRetry, Delay: d, Attempted: true, Err: cause}
	if cause != nil {
		o.Reason = cause.Error()
	}
	return o
}

// NotYetDue reschedules a reminder that is not due without spending an attempt.
func NotYetDue(d time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetry, Delay: d, Reason: "not due yet"}
}

// TerminalFailure means the reminder was given up on.
func TerminalFailure(cause error) Outcome {
	o := Outcome{Kind: OutcomeTerminal, Err: cause}
	if cause != nil {
		o.Reason = cause.Error()
	}
	return o
}

const (
	backoffBase = 60 * time.Second
	backoffCap  = time.Hour
)

// Backoff is the wait before retrying after failed attempt k (0-based):
// min(60 * 2^k, 3600) seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 60s * 2^6 already exceeds the cap.
	if attempt >= 6 {
		return backoffCap
	}
	return min(backoffBase<<attempt, backoffCap)
}
