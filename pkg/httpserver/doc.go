// Package httpserver runs the worker's ops HTTP endpoint.
//
// Server wraps net/http with context-driven graceful shutdown: Run blocks
// until its context is canceled (or Shutdown is called) and then drains
// in-flight requests within the configured shutdown timeout. Unlike a
// public-facing server it installs no signal handlers; the binary owns
// signal handling and cancels the context.
//
// Liveness and Readiness build JSON health handlers. Readiness takes named
// Check probes such as pg.Healthcheck and redis.Healthcheck and answers 503
// when any of them fails.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Run wraps listen errors with ErrStart and Shutdown wraps drain errors with
// ErrShutdown.
package httpserver
