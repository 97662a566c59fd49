package reminder

import "time"

// Config holds scanner and delivery settings.
type Config struct {
	MaxRetries   int           `env:"REMINDER_MAX_RETRIES" envDefault:"5"`
	ScanInterval time.Duration `env:"REMINDER_SCAN_INTERVAL" envDefault:"60s"`
	// ClaimLease keeps a claimed reminder out of later scans while its
	// delivery task is queued or running.
	ClaimLease     time.Duration `env:"REMINDER_CLAIM_LEASE" envDefault:"10m"`
	ClaimBatchSize int           `env:"REMINDER_CLAIM_BATCH_SIZE" envDefault:"1000"`
	Queue          string        `env:"REMINDER_QUEUE" envDefault:"default"`
}

// Defaults used when options are not set.
const (
	DefaultMaxRetries     = 5
	DefaultClaimLease     = 10 * time.Minute
	DefaultClaimBatchSize = 1000
	// MinEarlyDelay is the shortest wait before re-checking a reminder that
	// was picked up before its time.
	MinEarlyDelay = 60 * time.Second
)
