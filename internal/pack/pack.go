// Package pack exports a folder subtree to a portable archive and imports
// such archives into another vault. Unlike a full backup, a package is
// merged into existing content: identifiers are regenerated on import and
// collisions are resolved instead of overwriting.
package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vaultcraft/vaultcraft/internal/archive"
	"github.com/vaultcraft/vaultcraft/internal/blob"
	"github.com/vaultcraft/vaultcraft/internal/db"
	"github.com/vaultcraft/vaultcraft/internal/types"
)

// Entry names inside a package archive.
const (
	dataEntry        = "data.json"
	attachmentPrefix = "attachments/"
)

// data is the structured payload of a package: flat entity lists whose
// cross-references are resolved by id. Folders are ordered parents-first.
type data struct {
	RootFolderID string                `json:"root_folder_id"`
	Folders      []types.Folder        `json:"folders"`
	Items        []types.Item          `json:"items"`
	Tasks        []types.ChecklistTask `json:"tasks"`
	Tags         []types.Tag           `json:"tags"`
	Attachments  []types.Attachment    `json:"attachments"`
}

// validate checks every cross-reference inside a decoded payload. It runs
// before anything is written, so a malformed package fails whole instead of
// leaving a partial import behind. The root folder's parent may point
// outside the package; every other reference must resolve within it.
func (d *data) validate() error {
	folders := make(map[string]bool, len(d.Folders))
	for _, f := range d.Folders {
		folders[f.ID] = true
	}
	if !folders[d.RootFolderID] {
		return fmt.Errorf("%w: root folder missing from package", archive.ErrIntegrity)
	}
	items := make(map[string]bool, len(d.Items))
	for _, it := range d.Items {
		if !folders[it.FolderID] {
			return fmt.Errorf("%w: item %q references unknown folder", archive.ErrIntegrity, it.Title)
		}
		items[it.ID] = true
	}
	tasks := make(map[string]bool, len(d.Tasks))
	for _, task := range d.Tasks {
		if !items[task.ItemID] {
			return fmt.Errorf("%w: task %q references unknown item", archive.ErrIntegrity, task.Title)
		}
		tasks[task.ID] = true
	}
	for _, a := range d.Attachments {
		switch {
		case a.ItemID != nil && items[*a.ItemID]:
		case a.TaskID != nil && tasks[*a.TaskID]:
		default:
			return fmt.Errorf("%w: attachment %q references unknown owner",
				archive.ErrIntegrity, a.Filename)
		}
	}
	return nil
}

// Engine exports and imports packages for one vault.
type Engine struct {
	DB         *db.DB
	Blobs      *blob.Store
	AppVersion string
	Log        *log.Logger
}

// ArchiveName returns the conventional filename for a package exported
// from the named folder at t.
func ArchiveName(folderName string, t time.Time) string {
	return "vault-export-" + folderName + "-" + t.UTC().Format("20060102-150405") + ".zip"
}

// Export writes the folder subtree rooted at folderID to dest: the folder
// tree, its items with tags and checklist tasks, and every attachment blob.
func (e *Engine) Export(ctx context.Context, folderID, dest string) (archive.Manifest, error) {
	folders, err := e.DB.FolderSubtree(ctx, folderID)
	if err != nil {
		return archive.Manifest{}, err
	}
	root := folders[0]

	payload := data{RootFolderID: root.ID, Folders: folders}
	tagSeen := make(map[string]bool)

	for _, f := range folders {
		items, err := e.DB.ItemsByFolder(ctx, f.ID)
		if err != nil {
			return archive.Manifest{}, err
		}
		for _, it := range items {
			full, err := e.DB.ItemByID(ctx, it.ID)
			if err != nil {
				return archive.Manifest{}, err
			}
			for _, t := range full.Tags {
				if !tagSeen[t.ID] {
					tagSeen[t.ID] = true
					payload.Tags = append(payload.Tags, t)
				}
			}
			payload.Attachments = append(payload.Attachments, full.Attachments...)
			if full.Kind == types.KindChecklist {
				tasks, err := e.DB.TasksByItem(ctx, full.ID)
				if err != nil {
					return archive.Manifest{}, err
				}
				for _, task := range tasks {
					payload.Attachments = append(payload.Attachments, task.Attachments...)
					task.Attachments = nil
					payload.Tasks = append(payload.Tasks, task)
				}
			}
			full.Attachments = nil
			payload.Items = append(payload.Items, full)
		}
	}

	w, err := archive.NewWriter(dest)
	if err != nil {
		return archive.Manifest{}, err
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		w.Abort()
		return archive.Manifest{}, fmt.Errorf("failed to encode package data: %w", err)
	}

	manifest := archive.Manifest{
		FormatVersion:    archive.FormatVersion,
		CreatedAt:        time.Now().UTC(),
		AppVersion:       e.AppVersion,
		FolderCount:      int64(len(payload.Folders)),
		ItemCount:        int64(len(payload.Items)),
		AttachmentCount:  int64(len(payload.Attachments)),
		AttachmentHashes: make(map[string]string, len(payload.Attachments)),
		RootFolder:       root.Name,
	}
	if manifest.SchemaVersion, err = e.DB.SchemaVersion(ctx); err != nil {
		w.Abort()
		return archive.Manifest{}, err
	}

	_, n, err := w.Add(dataEntry, bytes.NewReader(encoded))
	if err != nil {
		w.Abort()
		return archive.Manifest{}, err
	}
	manifest.TotalBytes += n

	for _, a := range payload.Attachments {
		src, err := e.Blobs.Resolve(a.InternalPath)
		if err != nil {
			w.Abort()
			return archive.Manifest{}, err
		}
		hash, n, err := w.AddFile(attachmentPrefix+a.InternalPath, src)
		if err != nil {
			w.Abort()
			return archive.Manifest{}, err
		}
		manifest.AttachmentHashes[a.InternalPath] = hash
		manifest.TotalBytes += n
	}

	if err := w.AddManifest(manifest); err != nil {
		w.Abort()
		return archive.Manifest{}, err
	}
	if err := w.Close(); err != nil {
		return archive.Manifest{}, err
	}

	if e.Log != nil {
		e.Log.Printf("Package exported: %s (%d folders, %d items, %d attachments)",
			dest, manifest.FolderCount, manifest.ItemCount, manifest.AttachmentCount)
	}
	return manifest, nil
}

// Result summarizes what an import created or reused.
type Result struct {
	RootFolderID      string
	FoldersCreated    int
	FoldersReused     int
	ItemsCreated      int
	ItemsRenamed      int
	TagsCreated       int
	TagsReused        int
	AttachmentsCopied int
}

// Import merges the package at path into the vault under destParentID
// (nil = vault root). Every entity gets a fresh identifier. Folders are
// matched by name under their destination parent and reused when present;
// item titles colliding inside their destination folder get an
// " (imported)" suffix, repeated until unique; tags are matched by name
// ignoring case. Attachment digests are verified before any blob is copied.
func (e *Engine) Import(ctx context.Context, path string, destParentID *string) (Result, error) {
	r, err := archive.OpenReader(path)
	if err != nil {
		return Result{}, err
	}
	defer r.Close()

	if r.Manifest.RootFolder == "" {
		return Result{}, fmt.Errorf("%w: not a package archive (no root folder)", archive.ErrIntegrity)
	}
	for internalPath, hash := range r.Manifest.AttachmentHashes {
		if err := r.VerifyEntry(attachmentPrefix+internalPath, hash); err != nil {
			return Result{}, err
		}
	}

	df, err := r.Open(dataEntry)
	if err != nil {
		return Result{}, err
	}
	var payload data
	err = json.NewDecoder(df).Decode(&payload)
	_ = df.Close()
	if err != nil {
		return Result{}, fmt.Errorf("%w: unreadable package data: %v", archive.ErrIntegrity, err)
	}
	if int64(len(payload.Folders)) != r.Manifest.FolderCount ||
		int64(len(payload.Items)) != r.Manifest.ItemCount ||
		int64(len(payload.Attachments)) != r.Manifest.AttachmentCount {
		return Result{}, fmt.Errorf("%w: entity counts disagree with manifest", archive.ErrIntegrity)
	}
	if err := payload.validate(); err != nil {
		return Result{}, err
	}

	var result Result

	// Folders arrive parents-first, so a mapped parent always exists by the
	// time its children are placed.
	folderMap := make(map[string]string, len(payload.Folders))
	for _, f := range payload.Folders {
		parent := destParentID
		if f.ParentID != nil {
			if mapped, ok := folderMap[*f.ParentID]; ok {
				p := mapped
				parent = &p
			}
		}
		existing, err := e.DB.FolderByNameUnder(ctx, parent, f.Name)
		if err == nil {
			folderMap[f.ID] = existing.ID
			result.FoldersReused++
			continue
		}
		created, err := e.DB.CreateFolder(ctx, types.NewFolder{Name: f.Name, ParentID: parent})
		if err != nil {
			return result, err
		}
		folderMap[f.ID] = created.ID
		result.FoldersCreated++
	}
	result.RootFolderID = folderMap[payload.RootFolderID]

	tagMap := make(map[string]string, len(payload.Tags))
	for _, t := range payload.Tags {
		existing, err := e.DB.TagByName(ctx, t.Name)
		if err == nil {
			tagMap[t.ID] = existing.ID
			result.TagsReused++
			continue
		}
		created, err := e.DB.CreateTag(ctx, types.NewTag{Name: t.Name, Color: t.Color})
		if err != nil {
			return result, err
		}
		tagMap[t.ID] = created.ID
		result.TagsCreated++
	}

	itemMap := make(map[string]string, len(payload.Items))
	for _, it := range payload.Items {
		folderID, ok := folderMap[it.FolderID]
		if !ok {
			return result, fmt.Errorf("%w: item %q references unknown folder", archive.ErrIntegrity, it.Title)
		}
		title, renamed, err := e.uniqueTitle(ctx, folderID, it.Title)
		if err != nil {
			return result, err
		}
		if renamed {
			result.ItemsRenamed++
		}
		tagIDs := make([]string, 0, len(it.Tags))
		for _, t := range it.Tags {
			if mapped, ok := tagMap[t.ID]; ok {
				tagIDs = append(tagIDs, mapped)
			}
		}
		created, err := e.DB.CreateItem(ctx, types.NewItem{
			FolderID:    folderID,
			Kind:        it.Kind,
			Title:       title,
			Description: it.Description,
			Body:        it.Body,
			DueAt:       it.DueAt,
			TagIDs:      tagIDs,
		})
		if err != nil {
			return result, err
		}
		itemMap[it.ID] = created.ID
		result.ItemsCreated++
	}

	taskMap := make(map[string]string, len(payload.Tasks))
	for _, task := range payload.Tasks {
		itemID, ok := itemMap[task.ItemID]
		if !ok {
			return result, fmt.Errorf("%w: task %q references unknown item", archive.ErrIntegrity, task.Title)
		}
		created, err := e.DB.CreateTask(ctx, types.NewTask{ItemID: itemID, Title: task.Title})
		if err != nil {
			return result, err
		}
		if task.Done {
			if _, err := e.DB.SetTaskDone(ctx, created.ID, true); err != nil {
				return result, err
			}
		}
		taskMap[task.ID] = created.ID
	}

	for _, a := range payload.Attachments {
		src, err := r.Open(attachmentPrefix + a.InternalPath)
		if err != nil {
			return result, err
		}
		newID := uuid.NewString()
		info, werr := e.Blobs.Write(newID, a.Filename, src)
		_ = src.Close()
		if werr != nil {
			return result, werr
		}

		rec := types.Attachment{
			ID:           newID,
			Filename:     info.Filename,
			InternalPath: info.InternalPath,
			Size:         info.Size,
			MIME:         a.MIME,
			SHA256:       info.SHA256,
		}
		if a.ItemID != nil {
			if mapped, ok := itemMap[*a.ItemID]; ok {
				rec.ItemID = &mapped
			}
		} else if a.TaskID != nil {
			if mapped, ok := taskMap[*a.TaskID]; ok {
				rec.TaskID = &mapped
			}
		}
		if rec.ItemID == nil && rec.TaskID == nil {
			_ = e.Blobs.Remove(info.InternalPath)
			return result, fmt.Errorf("%w: attachment %q references unknown owner",
				archive.ErrIntegrity, a.Filename)
		}
		if _, err := e.DB.CreateAttachment(ctx, rec); err != nil {
			_ = e.Blobs.Remove(info.InternalPath)
			return result, err
		}
		result.AttachmentsCopied++
	}

	if e.Log != nil {
		e.Log.Printf("Package imported: %s (%d folders created, %d reused, %d items, %d attachments)",
			path, result.FoldersCreated, result.FoldersReused, result.ItemsCreated, result.AttachmentsCopied)
	}
	return result, nil
}

// uniqueTitle appends " (imported)" to title until no item in the folder
// carries it.
func (e *Engine) uniqueTitle(ctx context.Context, folderID, title string) (string, bool, error) {
	items, err := e.DB.ItemsByFolder(ctx, folderID)
	if err != nil {
		return "", false, err
	}
	taken := make(map[string]bool, len(items))
	for _, it := range items {
		taken[it.Title] = true
	}
	renamed := false
	for taken[title] {
		title += " (imported)"
		renamed = true
	}
	return title, renamed, nil
}
