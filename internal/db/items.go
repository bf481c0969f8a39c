package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

const itemColumns = `id, folder_id, kind, title, description, body, due_at, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (types.Item, error) {
	var it types.Item
	var dueAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&it.ID, &it.FolderID, &it.Kind, &it.Title, &it.Description,
		&it.Body, &dueAt, &createdAt, &updatedAt)
	if err != nil {
		return types.Item{}, err
	}
	it.DueAt = nullStringToTime(dueAt)
	it.CreatedAt = parseTime(createdAt)
	it.UpdatedAt = parseTime(updatedAt)
	return it, nil
}

// ItemByID returns an item with its tags and attachments loaded, or
// ErrNotFound.
func (db *DB) ItemByID(ctx context.Context, id string) (types.Item, error) {
	it, err := scanItem(db.conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return types.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Item{}, fmt.Errorf("failed to load item %s: %w", id, err)
	}
	if it.Tags, err = db.TagsByItem(ctx, id); err != nil {
		return types.Item{}, err
	}
	if it.Attachments, err = db.AttachmentsByItem(ctx, id); err != nil {
		return types.Item{}, err
	}
	return it, nil
}

// ItemsByFolder returns the items directly inside a folder, most recently
// updated first. Tags are loaded; attachments are not.
func (db *DB) ItemsByFolder(ctx context.Context, folderID string) ([]types.Item, error) {
	items, err := db.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE folder_id = ? ORDER BY updated_at DESC, title ASC`,
		folderID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Tags, err = db.TagsByItem(ctx, items[i].ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ItemsDueBefore returns items whose due date falls on or before the cutoff,
// soonest first. Items without a due date never appear.
func (db *DB) ItemsDueBefore(ctx context.Context, cutoff time.Time) ([]types.Item, error) {
	return db.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE due_at IS NOT NULL AND due_at <= ? ORDER BY due_at ASC`,
		formatTime(cutoff))
}

// CreateItem inserts an item, links its tags, and audits the creation, all
// in one transaction.
func (db *DB) CreateItem(ctx context.Context, in types.NewItem) (types.Item, error) {
	if err := in.Validate(); err != nil {
		return types.Item{}, err
	}
	if _, err := db.FolderByID(ctx, in.FolderID); err != nil {
		return types.Item{}, err
	}

	id := newID()
	ts := formatTime(now())
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, folder_id, kind, title, description, body, due_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.FolderID, string(in.Kind), in.Title, in.Description, in.Body,
			timeToNullString(in.DueAt), ts, ts)
		if err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		if err := replaceItemTags(ctx, tx, id, in.TagIDs); err != nil {
			return err
		}
		return appendAudit(ctx, tx, types.EventCreate, "item", id, in.Title)
	})
	if err != nil {
		return types.Item{}, err
	}

	db.log.Printf("Item created: %s %q (%s)", in.Kind, in.Title, id)
	return db.ItemByID(ctx, id)
}

// UpdateItem applies the non-nil fields of upd. The kind of an item never
// changes. A non-nil TagIDs slice replaces the item's tag set wholesale.
func (db *DB) UpdateItem(ctx context.Context, id string, upd types.ItemUpdate) (types.Item, error) {
	current, err := db.ItemByID(ctx, id)
	if err != nil {
		return types.Item{}, err
	}

	title := current.Title
	if upd.Title != nil {
		if *upd.Title == "" {
			return types.Item{}, fmt.Errorf("title is required")
		}
		title = *upd.Title
	}
	description := current.Description
	if upd.Description != nil {
		description = *upd.Description
	}
	body := current.Body
	if upd.Body != nil {
		body = *upd.Body
	}
	folderID := current.FolderID
	if upd.FolderID != nil {
		if _, err := db.FolderByID(ctx, *upd.FolderID); err != nil {
			return types.Item{}, err
		}
		folderID = *upd.FolderID
	}
	dueAt := current.DueAt
	if upd.ClearDue {
		dueAt = nil
	} else if upd.DueAt != nil {
		dueAt = upd.DueAt
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE items SET folder_id = ?, title = ?, description = ?, body = ?, due_at = ?, updated_at = ?
			WHERE id = ?`,
			folderID, title, description, body, timeToNullString(dueAt), formatTime(now()), id)
		if err != nil {
			return fmt.Errorf("failed to update item %s: %w", id, err)
		}
		if upd.TagIDs != nil {
			if err := replaceItemTags(ctx, tx, id, upd.TagIDs); err != nil {
				return err
			}
		}
		return appendAudit(ctx, tx, types.EventUpdate, "item", id, title)
	})
	if err != nil {
		return types.Item{}, err
	}
	return db.ItemByID(ctx, id)
}

// DeleteItem removes an item; cascades take the tasks, tag links, and
// attachment rows with it. The returned internal paths cover both the
// item's own attachments and those of its checklist tasks, so the caller
// can remove the blobs after the commit.
func (db *DB) DeleteItem(ctx context.Context, id string) ([]string, error) {
	item, err := db.ItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	paths, err := db.attachmentPathsForItem(ctx, id)
	if err != nil {
		return nil, err
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete item %s: %w", id, err)
		}
		return appendAudit(ctx, tx, types.EventDelete, "item", id, item.Title)
	})
	if err != nil {
		return nil, err
	}

	db.log.Printf("Item deleted: %q (%s)", item.Title, id)
	return paths, nil
}

func (db *DB) attachmentPathsForItem(ctx context.Context, itemID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.internal_path
		FROM attachments a
		LEFT JOIN checklist_tasks t ON a.task_id = t.id
		WHERE a.item_id = ? OR t.item_id = ?`,
		itemID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to collect attachment paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan attachment path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// replaceItemTags swaps the item's tag associations for exactly tagIDs.
// Every tag must exist; a dangling id fails the whole transaction.
func replaceItemTags(ctx context.Context, tx *sql.Tx, itemID string, tagIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to clear item tags: %w", err)
	}
	for _, tagID := range tagIDs {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE id = ?`, tagID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check tag %s: %w", tagID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?)`, itemID, tagID)
		if err != nil {
			return fmt.Errorf("failed to link tag %s: %w", tagID, err)
		}
	}
	return nil
}

func (db *DB) queryItems(ctx context.Context, query string, args ...interface{}) ([]types.Item, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []types.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
