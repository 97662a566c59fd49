package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email config")
	ErrInvalidParams     = errors.New("invalid email params")

	// ErrNotConfigured is returned by NewSender when no Postmark token is set.
	ErrNotConfigured = errors.New("email provider is not configured")
)
