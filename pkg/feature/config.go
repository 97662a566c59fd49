package feature

import "time"

// Config selects where flags come from and how long answers are cached.
type Config struct {
	EnvPrefix string        `env:"FEATURE_FLAG_ENV_PREFIX" envDefault:"FEATURE_FLAG_"`
	CacheTTL  time.Duration `env:"FEATURE_FLAG_CACHE_TTL" envDefault:"30s"`
	File      string        `env:"FEATURE_FLAG_FILE"`
}
