// Package types provides the core data structures shared across the vault.
package types

import (
	"fmt"
	"time"
)

// Kind identifies what an item is and which of its optional fields are
// meaningful. It is fixed at creation time.
type Kind string

const (
	KindNote      Kind = "note"
	KindDocument  Kind = "document"
	KindChecklist Kind = "checklist"
)

// Valid reports whether k is one of the supported item kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNote, KindDocument, KindChecklist:
		return true
	}
	return false
}

// Folder is a node in the vault's folder tree. ParentID is nil for roots.
// Path is the materialized path from the root, e.g. "/Personal/Finance",
// and always equals the parent's path plus "/" plus Name.
type Folder struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is the central entity of the vault: a note, a document, or a
// checklist. Body carries Markdown text and is only meaningful for notes.
type Item struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folder_id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Body        string    `json:"body,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Loaded via joins, not columns of the items table.
	Tags        []Tag        `json:"tags,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Tag is a colored label. Names are unique, compared case-insensitively.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultTagColor is used when a tag is created without an explicit color.
const DefaultTagColor = "#6366f1"

// Attachment is the database record for a blob stored on disk. Exactly one
// of ItemID and TaskID is set. InternalPath is relative to the attachment
// store root and has the shape "<attachment-id>/<original-filename>"; the
// blob at that path is exclusively owned by this record.
type Attachment struct {
	ID           string    `json:"id"`
	ItemID       *string   `json:"item_id,omitempty"`
	TaskID       *string   `json:"task_id,omitempty"`
	Filename     string    `json:"filename"`
	InternalPath string    `json:"internal_path"`
	Size         int64     `json:"size"`
	MIME         string    `json:"mime"`
	SHA256       string    `json:"sha256"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChecklistTask is a single entry of a checklist item. Position is a dense,
// application-maintained ordering within the parent item.
type ChecklistTask struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// AuditEntry is one immutable row of the audit log. It deliberately carries
// no foreign keys so it outlives the entities it describes.
type AuditEntry struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit event names.
const (
	EventCreate  = "create"
	EventUpdate  = "update"
	EventDelete  = "delete"
	EventBackup  = "backup"
	EventRestore = "restore"
	EventExport  = "export"
	EventImport  = "import"
	EventConfig  = "config"
	EventError   = "error"
)

// Setting is a key/value pair from the settings table.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult is one full-text search hit. Higher relevance is better.
type SearchResult struct {
	Item      Item    `json:"item"`
	Relevance float64 `json:"relevance"`
}

// NewFolder is the input for creating a folder.
type NewFolder struct {
	Name     string
	ParentID *string
}

// Validate checks the folder input.
func (f *NewFolder) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("folder name is required")
	}
	return nil
}

// NewItem is the input for creating an item.
type NewItem struct {
	FolderID    string
	Kind        Kind
	Title       string
	Description string
	Body        string
	DueAt       *time.Time
	TagIDs      []string
}

// Validate checks the item input.
func (i *NewItem) Validate() error {
	if i.FolderID == "" {
		return fmt.Errorf("folder id is required")
	}
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !i.Kind.Valid() {
		return fmt.Errorf("invalid item kind %q", i.Kind)
	}
	return nil
}

// ItemUpdate carries the fields to change on an item. Nil pointers leave the
// current value untouched. Kind is immutable and deliberately absent. A nil
// TagIDs slice leaves tag associations alone; a non-nil slice (including an
// empty one) replaces them.
type ItemUpdate struct {
	Title       *string
	Description *string
	Body        *string
	DueAt       *time.Time
	ClearDue    bool
	FolderID    *string
	TagIDs      []string
}

// NewTag is the input for creating or updating a tag.
type NewTag struct {
	Name  string
	Color string
}

// Validate checks the tag input.
func (t *NewTag) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tag name is required")
	}
	return nil
}

// NewTask is the input for creating a checklist task. A nil Position
// appends the task at the end of the list.
type NewTask struct {
	ItemID   string
	Title    string
	Position *int
}

// Validate checks the task input.
func (t *NewTask) Validate() error {
	if t.ItemID == "" {
		return fmt.Errorf("item id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// TaskUpdate carries the fields to change on a checklist task.
type TaskUpdate struct {
	Title    *string
	Done     *bool
	Position *int
}

// SearchFilters narrow a full-text search.
type SearchFilters struct {
	Kind     Kind   // empty = all kinds
	FolderID string // empty = all folders
	TagIDs   []string
	From     *time.Time // created at or after
	To       *time.Time // created at or before
	Limit    int        // 0 = default
}

// AuditFilters narrow an audit log listing.
type AuditFilters struct {
	Event      string
	EntityType string
	EntityID   string
	From       *time.Time
	To         *time.Time
	Limit      int // 0 = default 100
	Offset     int
}
