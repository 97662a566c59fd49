package push

import "errors"

// Errors returned by Client.Send.
var (
	ErrNotConfigured = errors.New("push client is not configured")
	ErrInvalidToken  = errors.New("invalid push token")
	ErrSendFailed    = errors.New("push notification failed")
	ErrCircuitOpen   = errors.New("push circuit breaker is open")
)
