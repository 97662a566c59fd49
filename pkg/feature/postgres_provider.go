package feature

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/remindkit/pkg/pg"
)

// PostgresProvider reads and writes the feature_flags table.
type PostgresProvider struct {
	db pg.DBTX
}

// NewPostgresProvider reads and writes the feature_flags table through db.
func NewPostgresProvider(db pg.DBTX) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// IsEnabled returns ErrFlagNotFound when the key has no row.
func (p *PostgresProvider) IsEnabled(ctx context.Context, flagName string) (bool, error) {
	var enabled bool
	err := p.db.QueryRow(ctx, `SELECT enabled FROM feature_flags WHERE key = $1`, flagName).Scan(&enabled)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return false, ErrFlagNotFound
		}
		return false, fmt.Errorf("query feature flag %q: %w", flagName, err)
	}
	return enabled, nil
}

func (p *PostgresProvider) GetFlag(ctx context.Context, flagName string) (*Flag, error) {
	f, err := scanFlag(p.db.QueryRow(ctx, `SELECT key, COALESCE(description, ''), enabled, updated_at
		FROM feature_flags WHERE key = $1`, flagName))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrFlagNotFound
		}
		return nil, err
	}
	return f, nil
}

func (p *PostgresProvider) ListFlags(ctx context.Context) ([]*Flag, error) {
	rows, err := p.db.Query(ctx, `SELECT key, COALESCE(description, ''), enabled, updated_at
		FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Flag, error) {
		return scanFlag(row)
	})
}

// SetFlag upserts by key.
func (p *PostgresProvider) SetFlag(ctx context.Context, flag Flag) error {
	if flag.Name == "" {
		return ErrInvalidFlag
	}
	_, err := p.db.Exec(ctx, `INSERT INTO feature_flags (key, enabled, description, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), now())
		ON CONFLICT (key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			description = COALESCE(EXCLUDED.description, feature_flags.description),
			updated_at = now()`, flag.Name, flag.Enabled, flag.Description)
	if err != nil {
		return fmt.Errorf("upsert feature flag %q: %w", flag.Name, err)
	}
	return nil
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var f Flag
	if err := row.Scan(&f.Name, &f.Description, &f.Enabled, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
