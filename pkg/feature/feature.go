package feature

import (
	"context"
	"time"
)

// Flag is a named runtime toggle.
type Flag struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	UpdatedAt   time.Time `json:"updated_at,omitzero" yaml:"-"`
}

// Provider answers whether a flag is on.
// Unknown flags yield false together with ErrFlagNotFound, so callers can
// apply their own default.
type Provider interface {
	IsEnabled(ctx context.Context, flagName string) (bool, error)
}

// Store is a Provider that can also be administered.
type Store interface {
	Provider
	GetFlag(ctx context.Context, flagName string) (*Flag, error)
	ListFlags(ctx context.Context) ([]*Flag, error)
	// SetFlag creates or updates a flag. An empty description keeps the stored one.
	SetFlag(ctx context.Context, flag Flag) error
}

// Description reports a flag's stored state next to the value callers actually get.
type Description struct {
	Flag
	Effective bool  `json:"effective"`
	Override  *bool `json:"override,omitempty"`
}
