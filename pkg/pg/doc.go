// Package pg holds the PostgreSQL plumbing shared by the reminder store, the
// task queue storage and the feature flag provider: pool construction with
// retry (Connect), goose migrations from an embedded filesystem (Migrate), a
// commit-or-rollback helper (WithTx), a readiness probe (Healthcheck) and error
// classifiers such as IsNotFoundError and IsDuplicateKeyError.
//
// Configuration is read from PG_* environment variables through the Config
// struct tags.
package pg
