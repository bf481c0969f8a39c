package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

// systemEntityID is recorded for events that target the vault as a whole
// (backup, restore, import) rather than a single entity.
const systemEntityID = "system"

// appendAudit writes one audit row using q, which is a *sql.Tx when the
// caller is a mutation (so the log entry commits or rolls back with it).
// Components never update or delete audit rows.
func appendAudit(ctx context.Context, q execer, event, entityType, entityID, details string) error {
	if entityID == "" {
		entityID = systemEntityID
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (id, event, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		newID(), event, entityType, entityID, nullStr(strOrNil(details)), formatTime(now()))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AppendAudit records an event outside of any entity mutation, e.g. a
// completed backup or a failed restore attempt.
func (db *DB) AppendAudit(ctx context.Context, event, entityType, entityID, details string) error {
	return appendAudit(ctx, db.conn, event, entityType, entityID, details)
}

// ListAudit returns audit entries matching the filters, newest first.
// Limit defaults to 100.
func (db *DB) ListAudit(ctx context.Context, filters types.AuditFilters) ([]types.AuditEntry, error) {
	var conditions []string
	var args []interface{}

	if filters.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, filters.Event)
	}
	if filters.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filters.EntityType)
	}
	if filters.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filters.EntityID)
	}
	if filters.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(*filters.From))
	}
	if filters.To != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, formatTime(*filters.To))
	}

	query := `SELECT id, event, entity_type, entity_id, details, created_at FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filters.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filters.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Event, &e.EntityType, &e.EntityID, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Details = details.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
