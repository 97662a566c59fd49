package push

import "time"

// Config holds Expo push settings.
type Config struct {
	AccessToken string        `env:"EXPO_ACCESS_TOKEN"`
	URL         string        `env:"EXPO_PUSH_URL" envDefault:"https://exp.host/--/api/v2/push/send"`
	Timeout     time.Duration `env:"EXPO_PUSH_TIMEOUT" envDefault:"10s"`

	// Circuit breaker around the push endpoint. Zero threshold disables it.
	BreakerFailures int           `env:"EXPO_BREAKER_FAILURES" envDefault:"5"`
	BreakerRecovery time.Duration `env:"EXPO_BREAKER_RECOVERY" envDefault:"30s"`
}
