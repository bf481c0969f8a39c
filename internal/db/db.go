// Package db owns the vault's SQLite database: connection setup, the
// versioned schema migrations, all CRUD queries, the trigger-maintained
// full-text index, and the append-only audit log.
//
// The database runs embedded with WAL journaling. All identifiers are
// generated here (UUIDv4) and all timestamps are UTC RFC3339 strings, so
// the database never invents values the application can't reproduce.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeFormat is how timestamps are stored. RFC3339 in UTC sorts
// lexicographically, which the due-date and audit range queries rely on.
const timeFormat = time.RFC3339

// DB wraps the SQLite connection with vault-specific functionality.
type DB struct {
	conn *sql.DB
	path string
	log  *log.Logger
}

// Open opens (creating if needed) the vault database at path and applies
// the pragmas the vault depends on: WAL for crash safety, foreign keys for
// the cascading deletes, and a busy timeout so a slow checkpoint doesn't
// surface as SQLITE_BUSY.
//
// The caller MUST call Close when done and should call Migrate before
// issuing any queries.
func Open(path string, logger *log.Logger) (*DB, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[db] ", log.LstdFlags)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them;
	// foreign_keys in particular is per-connection and the cascading
	// deletes depend on it.
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=synchronous(normal)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single-user vault has no reason for a large pool, and SQLite
	// serializes writers anyway.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path, log: logger}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Closed reports whether Close has released the connection. Callers that
// hold a handle across a restore must not issue queries on a closed one.
func (db *DB) Closed() bool {
	return db.conn == nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.log.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// Checkpoint truncates the WAL so the base database file is self-contained.
// The backup engine calls this before copying the file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	return nil
}

// Vacuum compacts the database file. Useful after large deletions.
func (db *DB) Vacuum(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	db.log.Println("Database compacted")
	return nil
}

// CountFolders returns the total number of folders.
func (db *DB) CountFolders(ctx context.Context) (int64, error) {
	return db.count(ctx, "folders")
}

// CountItems returns the total number of items.
func (db *DB) CountItems(ctx context.Context) (int64, error) {
	return db.count(ctx, "items")
}

// CountAttachments returns the total number of attachment records.
func (db *DB) CountAttachments(ctx context.Context) (int64, error) {
	return db.count(ctx, "attachments")
}

func (db *DB) count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting query helpers
// run inside or outside an explicit transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// inTx runs fn inside a transaction, committing on success and rolling
// back on error. Every multi-statement mutation in this package goes
// through here so partial application is never observable.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// newID returns a fresh UUIDv4 string. IDs are always generated by the
// application, never by the database.
func newID() string {
	return uuid.NewString()
}

// now returns the current UTC time truncated to second precision, matching
// the stored RFC3339 representation.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeFormat, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
