package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

const taskColumns = `id, item_id, title, done, position, created_at, updated_at`

func scanTask(row interface{ Scan(...interface{}) error }) (types.ChecklistTask, error) {
	var t types.ChecklistTask
	var done int
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.ItemID, &t.Title, &done, &t.Position, &createdAt, &updatedAt)
	if err != nil {
		return types.ChecklistTask{}, err
	}
	t.Done = done != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// TaskByID returns a single checklist task or ErrNotFound.
func (db *DB) TaskByID(ctx context.Context, id string) (types.ChecklistTask, error) {
	t, err := scanTask(db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM checklist_tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return types.ChecklistTask{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.ChecklistTask{}, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return t, nil
}

// TasksByItem returns the tasks of a checklist item in position order, with
// their attachments loaded.
func (db *DB) TasksByItem(ctx context.Context, itemID string) ([]types.ChecklistTask, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM checklist_tasks WHERE item_id = ? ORDER BY position ASC`,
		itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.ChecklistTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	for i := range tasks {
		if tasks[i].Attachments, err = db.AttachmentsByTask(ctx, tasks[i].ID); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// CreateTask adds a task to a checklist item. Without an explicit position
// it goes to the end. Only checklist items may own tasks.
func (db *DB) CreateTask(ctx context.Context, in types.NewTask) (types.ChecklistTask, error) {
	if err := in.Validate(); err != nil {
		return types.ChecklistTask{}, err
	}
	item, err := db.ItemByID(ctx, in.ItemID)
	if err != nil {
		return types.ChecklistTask{}, err
	}
	if item.Kind != types.KindChecklist {
		return types.ChecklistTask{}, fmt.Errorf("item %s is a %s, not a checklist", item.ID, item.Kind)
	}

	id := newID()
	ts := formatTime(now())
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		var max sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MAX(position) FROM checklist_tasks WHERE item_id = ?`, in.ItemID).Scan(&max)
		if err != nil {
			return fmt.Errorf("failed to read task positions: %w", err)
		}
		position := int(max.Int64) + 1
		if !max.Valid {
			position = 0
		}
		if in.Position != nil {
			position = *in.Position
			// Shift later tasks down to keep positions dense.
			_, err = tx.ExecContext(ctx, `
				UPDATE checklist_tasks SET position = position + 1
				WHERE item_id = ? AND position >= ?`, in.ItemID, position)
			if err != nil {
				return fmt.Errorf("failed to shift task positions: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checklist_tasks (id, item_id, title, done, position, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?, ?)`,
			id, in.ItemID, in.Title, position, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		return appendAudit(ctx, tx, types.EventCreate, "task", id, in.Title)
	})
	if err != nil {
		return types.ChecklistTask{}, err
	}
	return db.TaskByID(ctx, id)
}

// UpdateTask applies the non-nil fields of upd. Changing Position moves the
// task within its list and renumbers the others to stay dense.
func (db *DB) UpdateTask(ctx context.Context, id string, upd types.TaskUpdate) (types.ChecklistTask, error) {
	current, err := db.TaskByID(ctx, id)
	if err != nil {
		return types.ChecklistTask{}, err
	}
	title := current.Title
	if upd.Title != nil {
		if *upd.Title == "" {
			return types.ChecklistTask{}, fmt.Errorf("title is required")
		}
		title = *upd.Title
	}
	done := current.Done
	if upd.Done != nil {
		done = *upd.Done
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if upd.Position != nil && *upd.Position != current.Position {
			if err := moveTaskPosition(ctx, tx, current, *upd.Position); err != nil {
				return err
			}
		}
		doneInt := 0
		if done {
			doneInt = 1
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE checklist_tasks SET title = ?, done = ?, updated_at = ? WHERE id = ?`,
			title, doneInt, formatTime(now()), id)
		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", id, err)
		}
		return appendAudit(ctx, tx, types.EventUpdate, "task", id, title)
	})
	if err != nil {
		return types.ChecklistTask{}, err
	}
	return db.TaskByID(ctx, id)
}

// moveTaskPosition renumbers the sibling tasks so the moved task lands at
// target with everything else staying dense.
func moveTaskPosition(ctx context.Context, tx *sql.Tx, task types.ChecklistTask, target int) error {
	if target < 0 {
		target = 0
	}
	if target > task.Position {
		_, err := tx.ExecContext(ctx, `
			UPDATE checklist_tasks SET position = position - 1
			WHERE item_id = ? AND position > ? AND position <= ?`,
			task.ItemID, task.Position, target)
		if err != nil {
			return fmt.Errorf("failed to shift task positions: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE checklist_tasks SET position = position + 1
			WHERE item_id = ? AND position >= ? AND position < ?`,
			task.ItemID, target, task.Position)
		if err != nil {
			return fmt.Errorf("failed to shift task positions: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE checklist_tasks SET position = ? WHERE id = ?`, target, task.ID)
	if err != nil {
		return fmt.Errorf("failed to move task %s: %w", task.ID, err)
	}
	return nil
}

// SetTaskDone toggles a task's completion state.
func (db *DB) SetTaskDone(ctx context.Context, id string, done bool) (types.ChecklistTask, error) {
	return db.UpdateTask(ctx, id, types.TaskUpdate{Done: &done})
}

// DeleteTask removes a task, closes the position gap, and returns the
// internal paths of its attachments for blob cleanup.
func (db *DB) DeleteTask(ctx context.Context, id string) ([]string, error) {
	task, err := db.TaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	attachments, err := db.AttachmentsByTask(ctx, id)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(attachments))
	for _, a := range attachments {
		paths = append(paths, a.InternalPath)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_tasks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete task %s: %w", id, err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE checklist_tasks SET position = position - 1
			WHERE item_id = ? AND position > ?`, task.ItemID, task.Position)
		if err != nil {
			return fmt.Errorf("failed to close position gap: %w", err)
		}
		return appendAudit(ctx, tx, types.EventDelete, "task", id, task.Title)
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
