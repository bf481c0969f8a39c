package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

const attachmentColumns = `id, item_id, task_id, filename, internal_path, size, mime, sha256, created_at`

func scanAttachment(row interface{ Scan(...interface{}) error }) (types.Attachment, error) {
	var a types.Attachment
	var itemID, taskID sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &itemID, &taskID, &a.Filename, &a.InternalPath,
		&a.Size, &a.MIME, &a.SHA256, &createdAt)
	if err != nil {
		return types.Attachment{}, err
	}
	a.ItemID = strPtr(itemID)
	a.TaskID = strPtr(taskID)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

// AttachmentByID returns a single attachment record or ErrNotFound.
func (db *DB) AttachmentByID(ctx context.Context, id string) (types.Attachment, error) {
	a, err := scanAttachment(db.conn.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return types.Attachment{}, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Attachment{}, fmt.Errorf("failed to load attachment %s: %w", id, err)
	}
	return a, nil
}

// AttachmentsByItem returns an item's own attachments (not those of its
// tasks), oldest first.
func (db *DB) AttachmentsByItem(ctx context.Context, itemID string) ([]types.Attachment, error) {
	return db.queryAttachments(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE item_id = ? ORDER BY created_at ASC`,
		itemID)
}

// AttachmentsByTask returns a checklist task's attachments, oldest first.
func (db *DB) AttachmentsByTask(ctx context.Context, taskID string) ([]types.Attachment, error) {
	return db.queryAttachments(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE task_id = ? ORDER BY created_at ASC`,
		taskID)
}

// Attachments returns every attachment record in the vault. The backup
// engine walks this to archive the blob store.
func (db *DB) Attachments(ctx context.Context) ([]types.Attachment, error) {
	return db.queryAttachments(ctx,
		`SELECT `+attachmentColumns+` FROM attachments ORDER BY created_at ASC`)
}

// CreateAttachment records an attachment. The blob must already exist in
// the store; the caller passes the metadata the store computed. Exactly one
// of rec.ItemID and rec.TaskID must be set, and the owner must exist.
func (db *DB) CreateAttachment(ctx context.Context, rec types.Attachment) (types.Attachment, error) {
	if (rec.ItemID == nil) == (rec.TaskID == nil) {
		return types.Attachment{}, fmt.Errorf("attachment must reference exactly one of item or task")
	}
	if rec.Filename == "" || rec.InternalPath == "" {
		return types.Attachment{}, fmt.Errorf("attachment filename and internal path are required")
	}
	if rec.ItemID != nil {
		if _, err := db.ItemByID(ctx, *rec.ItemID); err != nil {
			return types.Attachment{}, err
		}
	} else {
		if _, err := db.TaskByID(ctx, *rec.TaskID); err != nil {
			return types.Attachment{}, err
		}
	}

	if rec.ID == "" {
		rec.ID = newID()
	}
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, item_id, task_id, filename, internal_path, size, mime, sha256, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, nullStr(rec.ItemID), nullStr(rec.TaskID), rec.Filename,
			rec.InternalPath, rec.Size, rec.MIME, rec.SHA256, formatTime(now()))
		if err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
		return appendAudit(ctx, tx, types.EventCreate, "attachment", rec.ID, rec.Filename)
	})
	if err != nil {
		return types.Attachment{}, err
	}

	db.log.Printf("Attachment recorded: %q (%s, %d bytes)", rec.Filename, rec.ID, rec.Size)
	return db.AttachmentByID(ctx, rec.ID)
}

// DeleteAttachment removes an attachment record and returns its internal
// path so the caller can remove the blob.
func (db *DB) DeleteAttachment(ctx context.Context, id string) (string, error) {
	a, err := db.AttachmentByID(ctx, id)
	if err != nil {
		return "", err
	}
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete attachment %s: %w", id, err)
		}
		return appendAudit(ctx, tx, types.EventDelete, "attachment", id, a.Filename)
	})
	if err != nil {
		return "", err
	}
	return a.InternalPath, nil
}

func (db *DB) queryAttachments(ctx context.Context, query string, args ...interface{}) ([]types.Attachment, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []types.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}
