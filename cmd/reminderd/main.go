package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/remindkit/pkg/config"
	"github.com/dmitrymomot/remindkit/pkg/email"
	"github.com/dmitrymomot/remindkit/pkg/feature"
	"github.com/dmitrymomot/remindkit/pkg/httpserver"
	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/pkg/metrics"
	"github.com/dmitrymomot/remindkit/pkg/pg"
	"github.com/dmitrymomot/remindkit/pkg/push"
	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/pkg/redis"
	"github.com/dmitrymomot/remindkit/svc/notify"
	"github.com/dmitrymomot/remindkit/svc/ops"
	"github.com/dmitrymomot/remindkit/svc/reminder"
	"github.com/dmitrymomot/remindkit/svc/reminder/migrations"
)

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	logOpts := []logger.Option{logger.WithEnvironment(cfg.Environment, cfg.ServiceName)}
	if cfg.LogLevel != "" {
		logOpts = append(logOpts, logger.WithLevelString(cfg.LogLevel))
	}
	log := logger.New(logOpts...)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("reminderd stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("reminderd stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Postgres.AutoMigrate {
		if err := pg.Migrate(ctx, pool, cfg.Postgres, migrations.FS, migrations.Dir, log); err != nil {
			return err
		}
	}

	checks := []httpserver.Check{{Name: "postgres", Probe: pg.Healthcheck(pool)}}

	var sink metrics.Sink
	rdb, err := redis.Connect(ctx, cfg.Redis)
	switch {
	case err == nil:
		defer rdb.Close()
		sink = metrics.NewRedisSink(rdb, metrics.WithLogger(log))
		checks = append(checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(rdb)})
	case cfg.RedisOptional:
		log.Warn("redis unavailable, metrics stay in process", logger.Error(err))
		sink = metrics.NewMemorySink()
	default:
		return err
	}

	flagStore := feature.NewPostgresProvider(pool)
	if cfg.Feature.File != "" {
		seed, err := feature.LoadFile(cfg.Feature.File)
		if err != nil {
			return err
		}
		if err := feature.Seed(ctx, flagStore, seed); err != nil {
			return err
		}
	}
	flagEnv := feature.NewEnvProvider(
		feature.NewCachedProvider(flagStore, cfg.Feature.CacheTTL),
		feature.WithEnvPrefix(cfg.Feature.EnvPrefix),
	)

	mailer, err := newMailer(cfg, log)
	if err != nil {
		return err
	}
	pushClient := push.NewClient(cfg.Push)
	if !pushClient.Configured() {
		log.Warn("push notifications disabled, EXPO_ACCESS_TOKEN is not set")
	}

	dispatcher := notify.NewDispatcher(
		[]notify.Channel{
			notify.NewEmailChannel(mailer,
				notify.WithEmailSubject(cfg.Notify.EmailSubject),
				notify.WithEmailLogger(log)),
			notify.NewPushChannel(pushClient,
				notify.WithPushTitle(cfg.Notify.PushTitle),
				notify.WithPushLogger(log)),
		},
		notify.WithConfig(cfg.Notify),
		notify.WithFlags(flagEnv),
		notify.WithDispatcherLogger(log),
	)

	store := reminder.NewPostgresStore(pool,
		reminder.WithClaimLease(cfg.Reminder.ClaimLease),
		reminder.WithClaimBatchSize(cfg.Reminder.ClaimBatchSize),
	)

	taskStorage := queue.NewPostgresStorage(pool)
	enqueuer, err := queue.NewEnqueuer(taskStorage, queue.WithDefaultQueue(cfg.Reminder.Queue))
	if err != nil {
		return err
	}

	deliverer := reminder.NewDeliverer(store, dispatcher, sink,
		reminder.WithMaxRetries(cfg.Reminder.MaxRetries),
		reminder.WithRetryLease(cfg.Reminder.ClaimLease),
		reminder.WithDelivererLogger(log),
	)
	scanner := reminder.NewScanner(store, sink,
		reminder.WithScannerQueue(cfg.Reminder.Queue),
		reminder.WithScannerLogger(log),
	)
	tasks := reminder.NewTasks(deliverer, scanner, enqueuer,
		reminder.WithTasksQueue(cfg.Reminder.Queue),
		reminder.WithTasksLogger(log),
	)

	queues := cfg.Queue.Queues
	if !slices.Contains(queues, cfg.Reminder.Queue) {
		queues = append(queues, cfg.Reminder.Queue)
	}
	worker, err := queue.NewWorker(taskStorage,
		queue.WithQueues(queues...),
		queue.WithPullInterval(cfg.Queue.PollInterval),
		queue.WithLockTimeout(cfg.Queue.LockTimeout),
		queue.WithTaskTimeout(cfg.Queue.TaskTimeout),
		queue.WithMaxConcurrentTasks(cfg.Queue.MaxConcurrentTasks),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		return err
	}
	worker.RegisterHandlers(tasks.Handlers()...)

	scheduler, err := queue.NewScheduler(taskStorage,
		queue.WithCheckInterval(cfg.Queue.SchedulerInterval),
		queue.WithSchedulerLogger(log),
	)
	if err != nil {
		return err
	}
	if err := tasks.Schedule(scheduler, cfg.Reminder.ScanInterval); err != nil {
		return err
	}

	if cfg.AdminToken == "" {
		log.Warn("admin routes disabled, ADMIN_API_KEY is not set")
	}
	router := ops.NewRouter(ops.Deps{
		Metrics:      sink,
		DeadLetters:  store,
		TaskDLQ:      taskStorage,
		Reminders:    store,
		Flags:        flagStore,
		FlagEnv:      flagEnv,
		AdminToken:   cfg.AdminToken,
		Checks:       checks,
		Logger:       log,
		ProbeTimeout: cfg.ProbeTimeout,
	})
	server := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(scheduler.Run(ctx))
	g.Go(func() error { return server.Run(ctx, router) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newMailer returns nil when no email provider is configured, which keeps the
// email channel inapplicable. DevSender is only used in development.
func newMailer(cfg appConfig, log *slog.Logger) (email.EmailSender, error) {
	mailer, err := email.NewSender(cfg.Email)
	switch {
	case err == nil:
		return mailer, nil
	case !errors.Is(err, email.ErrNotConfigured):
		return nil, err
	case cfg.Environment == "development":
		log.Warn("POSTMARK_SERVER_TOKEN is not set, emails are written to disk",
			slog.String("dir", cfg.Email.DevOutputDir))
		return email.NewDevSender(cfg.Email.DevOutputDir), nil
	default:
		log.Warn("email notifications disabled, POSTMARK_SERVER_TOKEN is not set")
		return nil, nil
	}
}
