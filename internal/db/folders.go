package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

const folderColumns = `id, parent_id, name, path, created_at, updated_at`

func scanFolder(row interface{ Scan(...interface{}) error }) (types.Folder, error) {
	var f types.Folder
	var parentID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&f.ID, &parentID, &f.Name, &f.Path, &createdAt, &updatedAt)
	if err != nil {
		return types.Folder{}, err
	}
	f.ParentID = strPtr(parentID)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return f, nil
}

// Folders returns every folder in the vault ordered by path, i.e. the
// whole tree in depth-first order.
func (db *DB) Folders(ctx context.Context) ([]types.Folder, error) {
	return db.queryFolders(ctx,
		`SELECT `+folderColumns+` FROM folders ORDER BY path ASC`)
}

// FolderByID returns a single folder or ErrNotFound.
func (db *DB) FolderByID(ctx context.Context, id string) (types.Folder, error) {
	f, err := scanFolder(db.conn.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return types.Folder{}, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Folder{}, fmt.Errorf("failed to load folder %s: %w", id, err)
	}
	return f, nil
}

// ChildFolders returns the direct children of parentID, or the root
// folders when parentID is nil, ordered by name.
func (db *DB) ChildFolders(ctx context.Context, parentID *string) ([]types.Folder, error) {
	if parentID == nil {
		return db.queryFolders(ctx,
			`SELECT `+folderColumns+` FROM folders WHERE parent_id IS NULL ORDER BY name ASC`)
	}
	return db.queryFolders(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE parent_id = ? ORDER BY name ASC`, *parentID)
}

// FolderByNameUnder looks up a folder by exact name under the given parent
// (nil = vault root). Used by the package importer to place subtrees
// deterministically.
func (db *DB) FolderByNameUnder(ctx context.Context, parentID *string, name string) (types.Folder, error) {
	var row *sql.Row
	if parentID == nil {
		row = db.conn.QueryRowContext(ctx,
			`SELECT `+folderColumns+` FROM folders WHERE parent_id IS NULL AND name = ?`, name)
	} else {
		row = db.conn.QueryRowContext(ctx,
			`SELECT `+folderColumns+` FROM folders WHERE parent_id = ? AND name = ?`, *parentID, name)
	}
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return types.Folder{}, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return types.Folder{}, fmt.Errorf("failed to look up folder %q: %w", name, err)
	}
	return f, nil
}

// FolderSubtree returns the folder and all of its descendants ordered by
// path, so parents always precede children.
func (db *DB) FolderSubtree(ctx context.Context, id string) ([]types.Folder, error) {
	root, err := db.FolderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	descendants, err := db.queryFolders(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE path LIKE ? ORDER BY path ASC`,
		root.Path+"/%")
	if err != nil {
		return nil, err
	}
	return append([]types.Folder{root}, descendants...), nil
}

// CreateFolder inserts a folder, computing its materialized path from the
// parent, and audits the creation.
func (db *DB) CreateFolder(ctx context.Context, in types.NewFolder) (types.Folder, error) {
	if err := in.Validate(); err != nil {
		return types.Folder{}, err
	}

	path := "/" + in.Name
	if in.ParentID != nil {
		parent, err := db.FolderByID(ctx, *in.ParentID)
		if err != nil {
			return types.Folder{}, err
		}
		path = parent.Path + "/" + in.Name
	}

	id := newID()
	ts := formatTime(now())
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO folders (id, parent_id, name, path, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, nullStr(in.ParentID), in.Name, path, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to create folder: %w", err)
		}
		return appendAudit(ctx, tx, types.EventCreate, "folder", id, in.Name)
	})
	if err != nil {
		return types.Folder{}, err
	}

	db.log.Printf("Folder created: %s (%s)", path, id)
	return db.FolderByID(ctx, id)
}

// RenameFolder renames a folder and rewrites the materialized paths of its
// whole subtree in the same transaction.
func (db *DB) RenameFolder(ctx context.Context, id, newName string) (types.Folder, error) {
	if newName == "" {
		return types.Folder{}, fmt.Errorf("folder name is required")
	}
	current, err := db.FolderByID(ctx, id)
	if err != nil {
		return types.Folder{}, err
	}

	newPath := "/" + newName
	if current.ParentID != nil {
		parent, err := db.FolderByID(ctx, *current.ParentID)
		if err != nil {
			return types.Folder{}, err
		}
		newPath = parent.Path + "/" + newName
	}

	if err := db.rewriteFolderPaths(ctx, current, newName, current.ParentID, newPath); err != nil {
		return types.Folder{}, err
	}
	db.log.Printf("Folder renamed: %s -> %s", current.Path, newPath)
	return db.FolderByID(ctx, id)
}

// MoveFolder re-parents a folder (nil = vault root). The new parent must
// not be the folder itself or any of its descendants; such a move returns
// ErrCycle.
func (db *DB) MoveFolder(ctx context.Context, id string, newParentID *string) (types.Folder, error) {
	current, err := db.FolderByID(ctx, id)
	if err != nil {
		return types.Folder{}, err
	}

	newPath := "/" + current.Name
	if newParentID != nil {
		if *newParentID == id {
			return types.Folder{}, ErrCycle
		}
		parent, err := db.FolderByID(ctx, *newParentID)
		if err != nil {
			return types.Folder{}, err
		}
		// A descendant's path always extends the ancestor's path.
		if len(parent.Path) > len(current.Path) && parent.Path[:len(current.Path)+1] == current.Path+"/" {
			return types.Folder{}, ErrCycle
		}
		newPath = parent.Path + "/" + current.Name
	}

	if err := db.rewriteFolderPaths(ctx, current, current.Name, newParentID, newPath); err != nil {
		return types.Folder{}, err
	}
	db.log.Printf("Folder moved: %s -> %s", current.Path, newPath)
	return db.FolderByID(ctx, id)
}

// rewriteFolderPaths updates one folder's row and substitutes the path
// prefix of every descendant, atomically.
func (db *DB) rewriteFolderPaths(ctx context.Context, current types.Folder, name string, parentID *string, newPath string) error {
	ts := formatTime(now())
	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE folders SET name = ?, parent_id = ?, path = ?, updated_at = ? WHERE id = ?`,
			name, nullStr(parentID), newPath, ts, current.ID)
		if err != nil {
			return fmt.Errorf("failed to update folder %s: %w", current.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE folders SET path = ? || substr(path, ?), updated_at = ?
			WHERE path LIKE ? AND id != ?`,
			newPath, len(current.Path)+1, ts, current.Path+"/%", current.ID)
		if err != nil {
			return fmt.Errorf("failed to update descendant paths: %w", err)
		}
		return appendAudit(ctx, tx, types.EventUpdate, "folder", current.ID, newPath)
	})
}

// DeleteFolder removes a folder and, via cascades, its subtree: items,
// tasks, tag links and attachment rows. It returns the internal paths of
// every attachment that lived in the subtree so the caller can remove the
// blobs after the transaction commits.
func (db *DB) DeleteFolder(ctx context.Context, id string) ([]string, error) {
	folder, err := db.FolderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	paths, err := db.attachmentPathsUnderFolder(ctx, folder)
	if err != nil {
		return nil, err
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete folder %s: %w", id, err)
		}
		return appendAudit(ctx, tx, types.EventDelete, "folder", id, folder.Path)
	})
	if err != nil {
		return nil, err
	}

	db.log.Printf("Folder deleted: %s (%s)", folder.Path, id)
	return paths, nil
}

// attachmentPathsUnderFolder collects the internal paths of item-level and
// task-level attachments for every item in the folder's subtree.
func (db *DB) attachmentPathsUnderFolder(ctx context.Context, folder types.Folder) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.internal_path
		FROM attachments a
		LEFT JOIN checklist_tasks t ON a.task_id = t.id
		JOIN items i ON i.id = COALESCE(a.item_id, t.item_id)
		JOIN folders f ON f.id = i.folder_id
		WHERE f.id = ? OR f.path LIKE ?`,
		folder.ID, folder.Path+"/%")
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

func (db *DB) queryFolders(ctx context.Context, query string, args ...interface{}) ([]types.Folder, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []types.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return folders, nil
}
