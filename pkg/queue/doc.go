// Package queue is a storage-agnostic task queue with delayed, one-time and
// periodic tasks.
//
//   - Enqueuer adds one-time tasks, optionally with a countdown (WithDelay).
//   - Scheduler is the "beat": it turns interval Schedules into periodic tasks,
//     keeping at most one pending instance per name.
//   - Worker claims due tasks and dispatches them to Handlers by task name.
//
// Components talk to storage only through EnqueuerRepository,
// SchedulerRepository and WorkerRepository. MemoryStorage backs tests and local
// runs; PostgresStorage uses FOR UPDATE SKIP LOCKED claims and can be bound to
// an open pgx.Tx so an enqueue commits atomically with other writes.
//
// Task names default to the payload's Go type. Payloads implementing Named
// choose their own, which keeps names stable across package moves:
//
//	type DeliverPayload struct{ ID string }
//
//	func (DeliverPayload) TaskName() string { return "deliver" }
//
//	enq, _ := queue.NewEnqueuer(storage, queue.WithDefaultMaxRetries(0))
//	_ = enq.Enqueue(ctx, DeliverPayload{ID: "42"}, queue.WithDelay(time.Minute))
//
//	w, _ := queue.NewWorker(storage, queue.WithMaxConcurrentTasks(4))
//	w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p DeliverPayload) error {
//		return nil
//	}))
package queue
