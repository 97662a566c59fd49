// Package logger builds the structured slog.Logger used by every component of
// the reminder delivery core.
//
// New returns a *slog.Logger configured through functional options: output
// format (JSON or text), minimum level, static attributes and optional context
// extractors. Environment presets (WithEnvironment, WithProduction,
// WithDevelopment) pick the defaults used by the reminderd binary.
//
// Attribute helpers in attr.go keep key names stable across packages, so a
// reminder's full attempt history can be reconstructed from the log stream by
// filtering on correlation_id:
//
//	log := logger.New(logger.WithEnvironment("production", "reminderd"))
//	log.InfoContext(ctx, "reminder sent",
//	    logger.CorrelationID(cid),
//	    logger.ReminderID(r.ID),
//	    logger.Status("sent"),
//	)
package logger
