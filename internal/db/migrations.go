package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// schemaVersionKey is the settings row that tracks the schema version.
const schemaVersionKey = "schema_version"

// migration001 creates the full initial schema: entity tables, indexes,
// the standalone FTS5 index, and the triggers that keep it in sync.
//
// Every statement is written to be safe against partial re-application
// (IF NOT EXISTS), so a step that was interrupted mid-way can simply run
// again. The FTS table is standalone (not content=) with an UNINDEXED id
// column; the indexing engine has no in-place update, so the update
// trigger deletes and re-inserts. The tokenizer keeps diacritics
// (remove_diacritics 0) so accented text indexes as written.
const migration001 = `
CREATE TABLE IF NOT EXISTS folders (
	id         TEXT PRIMARY KEY,
	parent_id  TEXT REFERENCES folders(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);
CREATE INDEX IF NOT EXISTS idx_folders_path ON folders(path);

CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	folder_id   TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL CHECK (kind IN ('note', 'document', 'checklist')),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	due_at      TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_folder ON items(folder_id);
CREATE INDEX IF NOT EXISTS idx_items_due ON items(due_at);

CREATE TABLE IF NOT EXISTS tags (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
	color      TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS item_tags (
	item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	tag_id  TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (item_id, tag_id)
);
CREATE INDEX IF NOT EXISTS idx_item_tags_tag ON item_tags(tag_id);

CREATE TABLE IF NOT EXISTS checklist_tasks (
	id         TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	done       INTEGER NOT NULL DEFAULT 0,
	position   INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_item ON checklist_tasks(item_id, position);

CREATE TABLE IF NOT EXISTS attachments (
	id            TEXT PRIMARY KEY,
	item_id       TEXT REFERENCES items(id) ON DELETE CASCADE,
	task_id       TEXT REFERENCES checklist_tasks(id) ON DELETE CASCADE,
	filename      TEXT NOT NULL,
	internal_path TEXT NOT NULL,
	size          INTEGER NOT NULL,
	mime          TEXT NOT NULL,
	sha256        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	CHECK ((item_id IS NULL) != (task_id IS NULL))
);
CREATE INDEX IF NOT EXISTS idx_attachments_item ON attachments(item_id);
CREATE INDEX IF NOT EXISTS idx_attachments_task ON attachments(task_id);

-- No foreign keys here: the log must outlive the entities it describes.
CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	event       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	details     TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
	id UNINDEXED,
	title,
	description,
	body,
	tokenize = 'unicode61 remove_diacritics 0'
);

CREATE TRIGGER IF NOT EXISTS items_fts_insert AFTER INSERT ON items BEGIN
	INSERT INTO items_fts (id, title, description, body)
	VALUES (new.id, new.title, new.description, new.body);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_update AFTER UPDATE ON items BEGIN
	DELETE FROM items_fts WHERE id = old.id;
	INSERT INTO items_fts (id, title, description, body)
	VALUES (new.id, new.title, new.description, new.body);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_delete AFTER DELETE ON items BEGIN
	DELETE FROM items_fts WHERE id = old.id;
END;
`

// migration002 seeds default settings. INSERT OR IGNORE keeps it
// idempotent and preserves values the user already changed.
const migration002 = `
INSERT OR IGNORE INTO settings (key, value, updated_at)
VALUES ('theme', 'system', datetime('now'));
INSERT OR IGNORE INTO settings (key, value, updated_at)
VALUES ('due_soon_days', '7', datetime('now'));
`

type migration struct {
	version int
	name    string
	sql     string
}

// Shipped migrations are never rewritten or reordered; schema changes are
// always appended as new, higher-versioned steps.
var migrations = []migration{
	{1, "initial schema", migration001},
	{2, "seed defaults", migration002},
}

// LatestSchemaVersion returns the version the newest migration produces.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate brings the database schema to the version this build expects.
//
// Each pending step runs in its own transaction together with the version
// bump, so a failed step rolls back entirely and leaves the recorded
// version at its last successful value. A failure here is fatal to vault
// startup: the error wraps ErrSchema.
func (db *DB) Migrate(ctx context.Context) error {
	// The settings table must exist before anything else so the version
	// can be tracked. Idempotent by construction.
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT NOT NULL PRIMARY KEY,
			value      TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		INSERT OR IGNORE INTO settings (key, value) VALUES ('`+schemaVersionKey+`', '0');
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to bootstrap settings table: %v", ErrSchema, err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		db.log.Printf("Applying migration %d (%s)", m.version, m.name)

		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE settings SET value = ?, updated_at = ? WHERE key = ?`,
				strconv.Itoa(m.version), formatTime(now()), schemaVersionKey)
			if err != nil {
				return fmt.Errorf("migration %d: failed to record version: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
		current = m.version
	}

	return nil
}

// SchemaVersion reads the stored schema version. A missing row means 0.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, schemaVersionKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid stored schema version %q: %w", raw, err)
	}
	return v, nil
}
