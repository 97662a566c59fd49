package main

import (
	"time"

	"github.com/dmitrymomot/remindkit/pkg/email"
	"github.com/dmitrymomot/remindkit/pkg/feature"
	"github.com/dmitrymomot/remindkit/pkg/httpserver"
	"github.com/dmitrymomot/remindkit/pkg/pg"
	"github.com/dmitrymomot/remindkit/pkg/push"
	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/pkg/redis"
	"github.com/dmitrymomot/remindkit/svc/notify"
	"github.com/dmitrymomot/remindkit/svc/reminder"
)

type appConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"reminderd"`
	Environment string `env:"APP_ENV" envDefault:"production"`
	LogLevel    string `env:"LOG_LEVEL"`
	// RedisOptional keeps the worker running on in-process metrics when
	// Redis cannot be reached at startup.
	RedisOptional bool          `env:"REDIS_OPTIONAL" envDefault:"true"`
	ProbeTimeout  time.Duration `env:"OPS_PROBE_TIMEOUT" envDefault:"2s"`
	// AdminToken is compared against X-Admin-Token on /admin routes.
	AdminToken string `env:"ADMIN_API_KEY"`

	Postgres pg.Config
	Redis    redis.Config
	Email    email.Config
	Push     push.Config
	Queue    queue.Config
	Reminder reminder.Config
	Notify   notify.Config
	Feature  feature.Config
	HTTP     httpserver.Config
}
