package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

// defaultSearchLimit caps result sets when the caller doesn't.
const defaultSearchLimit = 50

// ftsQuery turns free-form user input into an FTS5 MATCH expression: each
// token is quoted (so operators like AND or - lose their meaning) and
// matched as a prefix.
func ftsQuery(input string) string {
	fields := strings.Fields(input)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"*`)
	}
	return strings.Join(terms, " ")
}

// Search runs a full-text query over item titles, descriptions, and bodies,
// narrowed by the filters. Results come back most relevant first; ties
// break on recency.
func (db *DB) Search(ctx context.Context, query string, filters types.SearchFilters) ([]types.SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, fmt.Errorf("search query is required")
	}

	// The left side of an FTS5 MATCH must be the table's own name, so the
	// index table stays unaliased here.
	sqlQuery := `
		SELECT ` + prefixColumns("i", itemColumns) + `, items_fts.rank
		FROM items_fts
		JOIN items i ON i.id = items_fts.id
		WHERE items_fts MATCH ?`
	args := []interface{}{match}

	if filters.Kind != "" {
		sqlQuery += " AND i.kind = ?"
		args = append(args, string(filters.Kind))
	}
	if filters.FolderID != "" {
		sqlQuery += " AND i.folder_id = ?"
		args = append(args, filters.FolderID)
	}
	for _, tagID := range filters.TagIDs {
		sqlQuery += ` AND EXISTS (
			SELECT 1 FROM item_tags it WHERE it.item_id = i.id AND it.tag_id = ?)`
		args = append(args, tagID)
	}
	if filters.From != nil {
		sqlQuery += " AND i.created_at >= ?"
		args = append(args, formatTime(*filters.From))
	}
	if filters.To != nil {
		sqlQuery += " AND i.created_at <= ?"
		args = append(args, formatTime(*filters.To))
	}

	// FTS5 rank is negative; smaller means more relevant.
	sqlQuery += " ORDER BY items_fts.rank ASC, i.updated_at DESC LIMIT ?"
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var it types.Item
		var dueAt sql.NullString
		var createdAt, updatedAt string
		var rank float64
		err := rows.Scan(&it.ID, &it.FolderID, &it.Kind, &it.Title, &it.Description,
			&it.Body, &dueAt, &createdAt, &updatedAt, &rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		it.DueAt = nullStringToTime(dueAt)
		it.CreatedAt = parseTime(createdAt)
		it.UpdatedAt = parseTime(updatedAt)
		results = append(results, types.SearchResult{Item: it, Relevance: -rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	for i := range results {
		if results[i].Item.Tags, err = db.TagsByItem(ctx, results[i].Item.ID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// CheckSearchIndex verifies the full-text index covers exactly the items
// table. It returns ErrIndexInconsistency when rows are missing or stale.
func (db *DB) CheckSearchIndex(ctx context.Context) error {
	var missing, orphaned int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items i
		WHERE NOT EXISTS (SELECT 1 FROM items_fts f WHERE f.id = i.id)`).Scan(&missing)
	if err != nil {
		return fmt.Errorf("failed to check search index: %w", err)
	}
	err = db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items_fts f
		WHERE NOT EXISTS (SELECT 1 FROM items i WHERE i.id = f.id)`).Scan(&orphaned)
	if err != nil {
		return fmt.Errorf("failed to check search index: %w", err)
	}
	if missing > 0 || orphaned > 0 {
		return fmt.Errorf("%w: %d items unindexed, %d stale entries",
			ErrIndexInconsistency, missing, orphaned)
	}
	return nil
}

// RebuildSearchIndex drops and repopulates the full-text index from the
// items table. Safe to run any time; the vault runs it automatically when
// CheckSearchIndex fails at startup.
func (db *DB) RebuildSearchIndex(ctx context.Context) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items_fts`); err != nil {
			return fmt.Errorf("failed to clear search index: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items_fts (id, title, description, body)
			SELECT id, title, description, body FROM items`)
		if err != nil {
			return fmt.Errorf("failed to repopulate search index: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.log.Println("Search index rebuilt")
	return nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
