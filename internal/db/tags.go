package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

const tagColumns = `id, name, color, created_at`

func scanTag(row interface{ Scan(...interface{}) error }) (types.Tag, error) {
	var t types.Tag
	var createdAt string
	if err := row.Scan(&t.ID, &t.Name, &t.Color, &createdAt); err != nil {
		return types.Tag{}, err
	}
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

// Tags returns all tags ordered by name.
func (db *DB) Tags(ctx context.Context) ([]types.Tag, error) {
	return db.queryTags(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY name COLLATE NOCASE ASC`)
}

// TagByID returns a single tag or ErrNotFound.
func (db *DB) TagByID(ctx context.Context, id string) (types.Tag, error) {
	t, err := scanTag(db.conn.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return types.Tag{}, fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Tag{}, fmt.Errorf("failed to load tag %s: %w", id, err)
	}
	return t, nil
}

// TagByName looks a tag up by name, case-insensitively.
func (db *DB) TagByName(ctx context.Context, name string) (types.Tag, error) {
	t, err := scanTag(db.conn.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE name = ? COLLATE NOCASE`, name))
	if err == sql.ErrNoRows {
		return types.Tag{}, fmt.Errorf("tag %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return types.Tag{}, fmt.Errorf("failed to look up tag %q: %w", name, err)
	}
	return t, nil
}

// TagsByItem returns the tags attached to an item, ordered by name.
func (db *DB) TagsByItem(ctx context.Context, itemID string) ([]types.Tag, error) {
	return db.queryTags(ctx, `
		SELECT t.id, t.name, t.color, t.created_at
		FROM tags t
		JOIN item_tags it ON it.tag_id = t.id
		WHERE it.item_id = ?
		ORDER BY t.name COLLATE NOCASE ASC`, itemID)
}

// CreateTag inserts a tag. Names are unique ignoring case; a duplicate is
// reported as such rather than as a raw constraint error.
func (db *DB) CreateTag(ctx context.Context, in types.NewTag) (types.Tag, error) {
	if err := in.Validate(); err != nil {
		return types.Tag{}, err
	}
	color := in.Color
	if color == "" {
		color = types.DefaultTagColor
	}

	id := newID()
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
			id, in.Name, color, formatTime(now()))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("tag %q already exists", in.Name)
			}
			return fmt.Errorf("failed to create tag: %w", err)
		}
		return appendAudit(ctx, tx, types.EventCreate, "tag", id, in.Name)
	})
	if err != nil {
		return types.Tag{}, err
	}
	return db.TagByID(ctx, id)
}

// UpdateTag renames and/or recolors a tag. Empty fields keep current values.
func (db *DB) UpdateTag(ctx context.Context, id string, in types.NewTag) (types.Tag, error) {
	current, err := db.TagByID(ctx, id)
	if err != nil {
		return types.Tag{}, err
	}
	name := current.Name
	if in.Name != "" {
		name = in.Name
	}
	color := current.Color
	if in.Color != "" {
		color = in.Color
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE tags SET name = ?, color = ? WHERE id = ?`,
			name, color, id)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("tag %q already exists", name)
			}
			return fmt.Errorf("failed to update tag %s: %w", id, err)
		}
		return appendAudit(ctx, tx, types.EventUpdate, "tag", id, name)
	})
	if err != nil {
		return types.Tag{}, err
	}
	return db.TagByID(ctx, id)
}

// DeleteTag removes a tag; item links cascade away, items themselves are
// untouched.
func (db *DB) DeleteTag(ctx context.Context, id string) error {
	tag, err := db.TagByID(ctx, id)
	if err != nil {
		return err
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete tag %s: %w", id, err)
		}
		return appendAudit(ctx, tx, types.EventDelete, "tag", id, tag.Name)
	})
}

// AttachTag links a tag to an item. Linking twice is a no-op.
func (db *DB) AttachTag(ctx context.Context, itemID, tagID string) error {
	if _, err := db.ItemByID(ctx, itemID); err != nil {
		return err
	}
	if _, err := db.TagByID(ctx, tagID); err != nil {
		return err
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?)`, itemID, tagID)
		if err != nil {
			return fmt.Errorf("failed to attach tag: %w", err)
		}
		return appendAudit(ctx, tx, types.EventUpdate, "item", itemID, "tag attached")
	})
}

// DetachTag removes a tag from an item.
func (db *DB) DetachTag(ctx context.Context, itemID, tagID string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM item_tags WHERE item_id = ? AND tag_id = ?`, itemID, tagID)
		if err != nil {
			return fmt.Errorf("failed to detach tag: %w", err)
		}
		return appendAudit(ctx, tx, types.EventUpdate, "item", itemID, "tag detached")
	})
}

func (db *DB) queryTags(ctx context.Context, query string, args ...interface{}) ([]types.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []types.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}
