package notify

import "time"

// Config holds fan-out settings.
type Config struct {
	// MultiChannelDefault applies when the flag is missing or the flag provider fails.
	MultiChannelDefault bool          `env:"NOTIFY_MULTI_CHANNEL_DEFAULT" envDefault:"true"`
	SendTimeout         time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"10s"`
	EmailSubject        string        `env:"NOTIFY_EMAIL_SUBJECT" envDefault:"AI Companion Reminder"`
	PushTitle           string        `env:"NOTIFY_PUSH_TITLE" envDefault:"Reminder"`
}
