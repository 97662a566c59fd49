package notify

import "errors"

var (
	// ErrNoApplicableChannels means the recipient has no destination any
	// configured channel can reach.
	ErrNoApplicableChannels = errors.New("no notification channel available for user")

	// ErrAllChannelsFailed means every applicable channel was tried and none succeeded.
	ErrAllChannelsFailed = errors.New("no notification channel succeeded")
)
