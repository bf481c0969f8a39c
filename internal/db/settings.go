package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

// Setting returns the value for key, or ErrNotFound.
func (db *DB) Setting(ctx context.Context, key string) (types.Setting, error) {
	var s types.Setting
	var updatedAt string
	err := db.conn.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM settings WHERE key = ?`, key).
		Scan(&s.Key, &s.Value, &updatedAt)
	if err == sql.ErrNoRows {
		return types.Setting{}, fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return types.Setting{}, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	s.UpdatedAt = parseTime(updatedAt)
	return s, nil
}

// SetSetting creates or updates a setting and audits the change.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, formatTime(now()))
		if err != nil {
			return fmt.Errorf("failed to save setting %q: %w", key, err)
		}
		return appendAudit(ctx, tx, types.EventConfig, "setting", key, "")
	})
}

// Settings returns all settings ordered by key.
func (db *DB) Settings(ctx context.Context) ([]types.Setting, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key, value, updated_at FROM settings ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []types.Setting
	for rows.Next() {
		var s types.Setting
		var updatedAt string
		if err := rows.Scan(&s.Key, &s.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		s.UpdatedAt = parseTime(updatedAt)
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}
	return settings, nil
}
