package feature

import "errors"

// Predefined errors for the feature package.
var (
	// ErrFlagNotFound indicates that the requested feature flag was not found.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrInvalidFlag indicates that the provided flag parameters are invalid.
	ErrInvalidFlag = errors.New("invalid feature flag")

	// ErrLoadFile indicates that a flag seed file could not be read or decoded.
	ErrLoadFile = errors.New("failed to load feature flag file")
)
