// Package notify fans a reminder out to every notification channel a user
// can be reached on.
//
// A Channel reports whether it applies to a Recipient (the provider is
// configured and the user has the matching contact data) and sends one
// Message, reporting failure as false instead of returning an error.
// Dispatcher calls every applicable channel, each with its own timeout, and
// the delivery counts as done when at least one of them succeeded.
//
// Multi-channel sending is gated by the "multi_channel_notifications" flag.
// When the flag is off, Dispatch is a no-op success.
package notify
