// Package reminder delivers due reminders.
//
// A periodic scan (Scanner, task "send_due_reminders") claims every scheduled
// reminder whose time has come and, in the same transaction, enqueues one
// "deliver_reminder" task per reminder. Claiming uses FOR UPDATE SKIP LOCKED
// plus a claim lease, so replicas scanning at once never claim the same row.
//
// Each delivery task (Deliverer) re-reads the reminder, skips anything that is
// no longer scheduled, fans the text out over the user's notification
// channels and marks the reminder sent. Failures come back as an Outcome:
// RetryAfter with backoff min(60*2^k, 3600)s while attempts remain, and a
// terminal failure after that, which marks the reminder as errored and writes
// a dead letter in one transaction. Queue-level retries are disabled; Tasks
// re-enqueues the delivery with the delay the Outcome asks for.
//
// Status changes go through a fixed lifecycle:
//
//	scheduled --deliver--> sent
//	scheduled --fail-----> error
//	scheduled --cancel---> canceled
//
// MemoryStore backs tests and local runs; PostgresStore backs production, with
// goose migrations in the migrations subpackage.
package reminder
