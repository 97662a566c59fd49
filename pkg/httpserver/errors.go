package httpserver

import "errors"

// Errors returned by Server.Run and Server.Shutdown.
var (
	ErrStart          = errors.New("failed to start ops server")
	ErrShutdown       = errors.New("failed to shut down ops server gracefully")
	ErrAlreadyRunning = errors.New("ops server already running")
)
