package queue

import "time"

// Config holds worker and scheduler settings.
type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	TaskTimeout        time.Duration `env:"QUEUE_TASK_TIMEOUT" envDefault:"2m"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
	SchedulerInterval  time.Duration `env:"QUEUE_SCHEDULER_INTERVAL" envDefault:"5s"`
	Queues             []string      `env:"QUEUE_NAMES" envSeparator:"," envDefault:"default"`
}
