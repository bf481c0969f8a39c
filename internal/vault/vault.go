// Package vault ties the database, the blob store, and the archive engines
// together into one coherent unit rooted at a single directory. It owns the
// operations that span subsystems: attaching files, cascading deletes with
// blob cleanup, and the backup, restore, export, and import flows.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vaultcraft/vaultcraft/internal/archive"
	"github.com/vaultcraft/vaultcraft/internal/backup"
	"github.com/vaultcraft/vaultcraft/internal/blob"
	"github.com/vaultcraft/vaultcraft/internal/db"
	"github.com/vaultcraft/vaultcraft/internal/pack"
	"github.com/vaultcraft/vaultcraft/internal/types"
)

// ErrBusy is returned when a backup, restore, export, or import is already
// running. These operations are exclusive with each other.
var ErrBusy = errors.New("another vault operation is in progress")

// Layout inside the vault directory.
const (
	databaseFile   = "vault.db"
	attachmentsDir = "attachments"
	snapshotsDir   = "snapshots"
	stagingDir     = "staging"
)

// Vault is an open vault directory.
type Vault struct {
	Dir        string
	DB         *db.DB
	Blobs      *blob.Store
	AppVersion string

	log  *log.Logger
	busy atomic.Bool
}

// Open opens (creating if needed) the vault at dir: it brings the schema to
// the current version and verifies the search index, rebuilding it if it
// has drifted.
func Open(ctx context.Context, dir, appVersion string, logger *log.Logger) (*Vault, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[vault] ", log.LstdFlags)
	}

	database, err := db.Open(filepath.Join(dir, databaseFile), logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	blobs, err := blob.Open(filepath.Join(dir, attachmentsDir), logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	v := &Vault{Dir: dir, DB: database, Blobs: blobs, AppVersion: appVersion, log: logger}

	if err := database.CheckSearchIndex(ctx); err != nil {
		if !errors.Is(err, db.ErrIndexInconsistency) {
			_ = database.Close()
			return nil, err
		}
		logger.Printf("Warning: %v; rebuilding", err)
		if err := database.RebuildSearchIndex(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	return v, nil
}

// Close releases the vault's database.
func (v *Vault) Close() error {
	return v.DB.Close()
}

// lock claims the exclusive-operation slot or fails with ErrBusy.
func (v *Vault) lock() error {
	if !v.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (v *Vault) unlock() {
	v.busy.Store(false)
}

// AttachFile ingests a local file into the blob store and records it
// against an item.
func (v *Vault) AttachFile(ctx context.Context, itemID, src string) (types.Attachment, error) {
	return v.attach(ctx, &itemID, nil, src)
}

// AttachFileToTask ingests a local file and records it against a checklist
// task.
func (v *Vault) AttachFileToTask(ctx context.Context, taskID, src string) (types.Attachment, error) {
	return v.attach(ctx, nil, &taskID, src)
}

func (v *Vault) attach(ctx context.Context, itemID, taskID *string, src string) (types.Attachment, error) {
	// Check the owner before touching the store so a bad id doesn't leave
	// an orphaned blob behind.
	if itemID != nil {
		if _, err := v.DB.ItemByID(ctx, *itemID); err != nil {
			return types.Attachment{}, err
		}
	} else {
		if _, err := v.DB.TaskByID(ctx, *taskID); err != nil {
			return types.Attachment{}, err
		}
	}

	id := uuid.NewString()
	info, err := v.Blobs.Ingest(id, src)
	if err != nil {
		return types.Attachment{}, err
	}

	rec, err := v.DB.CreateAttachment(ctx, types.Attachment{
		ID:           id,
		ItemID:       itemID,
		TaskID:       taskID,
		Filename:     info.Filename,
		InternalPath: info.InternalPath,
		Size:         info.Size,
		MIME:         info.MIME,
		SHA256:       info.SHA256,
	})
	if err != nil {
		_ = v.Blobs.Remove(info.InternalPath)
		return types.Attachment{}, err
	}
	return rec, nil
}

// OpenAttachment opens an attachment's blob for reading.
func (v *Vault) OpenAttachment(ctx context.Context, id string) (*os.File, types.Attachment, error) {
	rec, err := v.DB.AttachmentByID(ctx, id)
	if err != nil {
		return nil, types.Attachment{}, err
	}
	f, err := v.Blobs.Open(rec.InternalPath)
	if err != nil {
		return nil, types.Attachment{}, err
	}
	return f, rec, nil
}

// DeleteAttachment removes an attachment record and its blob.
func (v *Vault) DeleteAttachment(ctx context.Context, id string) error {
	internalPath, err := v.DB.DeleteAttachment(ctx, id)
	if err != nil {
		return err
	}
	v.Blobs.RemoveAll([]string{internalPath})
	return nil
}

// DeleteItem removes an item, its tasks and tag links, and every blob
// attached anywhere beneath it.
func (v *Vault) DeleteItem(ctx context.Context, id string) error {
	paths, err := v.DB.DeleteItem(ctx, id)
	if err != nil {
		return err
	}
	v.Blobs.RemoveAll(paths)
	return nil
}

// DeleteTask removes a checklist task and its blobs.
func (v *Vault) DeleteTask(ctx context.Context, id string) error {
	paths, err := v.DB.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	v.Blobs.RemoveAll(paths)
	return nil
}

// DeleteFolder removes a folder subtree and every blob it contained.
func (v *Vault) DeleteFolder(ctx context.Context, id string) error {
	paths, err := v.DB.DeleteFolder(ctx, id)
	if err != nil {
		return err
	}
	v.Blobs.RemoveAll(paths)
	return nil
}

// CreateBackup writes a full backup archive to dest. Exclusive with the
// other archive operations. Failures are recorded in the audit log too.
func (v *Vault) CreateBackup(ctx context.Context, dest string, progress backup.Progress) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.unlock()

	engine := &backup.Engine{DB: v.DB, Blobs: v.Blobs, AppVersion: v.AppVersion, Log: v.log}
	if _, err := engine.Create(ctx, dest, progress); err != nil {
		_ = v.DB.AppendAudit(ctx, types.EventError, "backup", "", err.Error())
		return err
	}
	return v.DB.AppendAudit(ctx, types.EventBackup, "backup", "", dest)
}

// VerifyBackup checks a backup archive's integrity without touching the
// vault.
func (v *Vault) VerifyBackup(path string, progress backup.Progress) error {
	_, err := backup.Verify(path, progress)
	return err
}

// RestoreBackup replaces the vault's entire contents with the archive at
// path.
//
// The archive is fully verified first; a corrupt archive leaves the live
// vault untouched. A safety snapshot of the current state is then written
// under the vault's snapshots directory, and only if that succeeds is the
// database closed and swapped for the staged restore. The database is
// reopened and re-migrated before returning, so an older backup comes back
// up at the current schema version.
func (v *Vault) RestoreBackup(ctx context.Context, path string, progress backup.Progress) (retErr error) {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.unlock()

	// The handle is closed during the swap; if the failure happens after
	// that, the audit entry has nowhere to go.
	defer func() {
		if retErr != nil && !v.DB.Closed() {
			_ = v.DB.AppendAudit(ctx, types.EventError, "restore", "", retErr.Error())
		}
	}()

	if _, err := backup.Verify(path, progress); err != nil {
		return err
	}

	snapshot := filepath.Join(v.Dir, snapshotsDir, backup.ArchiveName(time.Now()))
	engine := &backup.Engine{DB: v.DB, Blobs: v.Blobs, AppVersion: v.AppVersion, Log: v.log}
	if _, err := engine.Create(ctx, snapshot, progress); err != nil {
		return fmt.Errorf("refusing to restore, safety snapshot failed: %w", err)
	}
	v.log.Printf("Safety snapshot written: %s", snapshot)

	stage := filepath.Join(v.Dir, stagingDir)
	_ = os.RemoveAll(stage)
	if err := backup.Stage(path, stage, progress); err != nil {
		_ = os.RemoveAll(stage)
		return err
	}
	defer os.RemoveAll(stage)

	// Prove the staged database actually opens and migrates before the
	// live one is touched. Digests only guarantee the bytes match the
	// manifest, not that they form a usable database.
	staged, err := db.Open(filepath.Join(stage, databaseFile), v.log)
	if err != nil {
		return fmt.Errorf("%w: staged database unusable: %v", archive.ErrIntegrity, err)
	}
	merr := staged.Migrate(ctx)
	if cerr := staged.Close(); cerr != nil && merr == nil {
		merr = cerr
	}
	if merr != nil {
		return fmt.Errorf("%w: staged database unusable: %v", archive.ErrIntegrity, merr)
	}

	if err := v.DB.Close(); err != nil {
		return err
	}
	dbPath := filepath.Join(v.Dir, databaseFile)
	if err := backup.Swap(stage, dbPath, filepath.Join(v.Dir, attachmentsDir)); err != nil {
		// Reopen whatever state the swap left us so the audit deferral and
		// the caller still have a working handle.
		reopened, rerr := db.Open(dbPath, v.log)
		if rerr == nil {
			v.DB = reopened
		}
		return err
	}

	reopened, err := db.Open(dbPath, v.log)
	if err != nil {
		return fmt.Errorf("restored database failed to open (safety snapshot at %s): %w",
			snapshot, err)
	}
	v.DB = reopened
	if err := v.DB.Migrate(ctx); err != nil {
		return err
	}
	if err := v.DB.CheckSearchIndex(ctx); err != nil {
		if !errors.Is(err, db.ErrIndexInconsistency) {
			return err
		}
		if err := v.DB.RebuildSearchIndex(ctx); err != nil {
			return err
		}
	}

	return v.DB.AppendAudit(ctx, types.EventRestore, "restore", "", path)
}

// ExportPackage writes the folder subtree rooted at folderID to dest.
func (v *Vault) ExportPackage(ctx context.Context, folderID, dest string) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.unlock()

	engine := &pack.Engine{DB: v.DB, Blobs: v.Blobs, AppVersion: v.AppVersion, Log: v.log}
	if _, err := engine.Export(ctx, folderID, dest); err != nil {
		_ = v.DB.AppendAudit(ctx, types.EventError, "export", folderID, err.Error())
		return err
	}
	return v.DB.AppendAudit(ctx, types.EventExport, "folder", folderID, dest)
}

// ImportPackage merges the package at path into the vault under
// destParentID (nil = root).
func (v *Vault) ImportPackage(ctx context.Context, path string, destParentID *string) (pack.Result, error) {
	if err := v.lock(); err != nil {
		return pack.Result{}, err
	}
	defer v.unlock()

	engine := &pack.Engine{DB: v.DB, Blobs: v.Blobs, AppVersion: v.AppVersion, Log: v.log}
	result, err := engine.Import(ctx, path, destParentID)
	if err != nil {
		_ = v.DB.AppendAudit(ctx, types.EventError, "import", "", err.Error())
		return result, err
	}
	return result, v.DB.AppendAudit(ctx, types.EventImport, "folder", result.RootFolderID, path)
}

// Stats summarizes the vault for status displays.
type Stats struct {
	Folders       int64
	Items         int64
	Attachments   int64
	SchemaVersion int
	DatabaseBytes int64
}

// Stats collects entity counts and the database file size.
func (v *Vault) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Folders, err = v.DB.CountFolders(ctx); err != nil {
		return Stats{}, err
	}
	if s.Items, err = v.DB.CountItems(ctx); err != nil {
		return Stats{}, err
	}
	if s.Attachments, err = v.DB.CountAttachments(ctx); err != nil {
		return Stats{}, err
	}
	if s.SchemaVersion, err = v.DB.SchemaVersion(ctx); err != nil {
		return Stats{}, err
	}
	if fi, err := os.Stat(v.DB.Path()); err == nil {
		s.DatabaseBytes = fi.Size()
	}
	return s, nil
}
