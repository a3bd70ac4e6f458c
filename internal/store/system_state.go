package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetSystemValue reads a single opaque key from system_state.
func (s *Store) GetSystemValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM system_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get system value: %w", err)
	}
	return value, nil
}

// SetSystemValue upserts a single opaque key in system_state.
func (s *Store) SetSystemValue(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO system_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	_, err := s.pool.Exec(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("set system value: %w", err)
	}
	return nil
}
