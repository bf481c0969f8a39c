// Package backup creates and restores full-vault archives: the SQLite
// database plus every attachment blob, wrapped in the archive container
// with a verifiable manifest.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/vaultcraft/vaultcraft/internal/archive"
	"github.com/vaultcraft/vaultcraft/internal/blob"
	"github.com/vaultcraft/vaultcraft/internal/db"
)

// Entry names inside a backup archive.
const (
	databaseEntry    = "vault.db"
	attachmentPrefix = "attachments/"
)

// Progress receives human-readable step descriptions during long
// operations. May be nil.
type Progress func(step string)

// Engine creates backups of one vault.
type Engine struct {
	DB         *db.DB
	Blobs      *blob.Store
	AppVersion string
	Log        *log.Logger
}

// ArchiveName returns the conventional filename for a backup taken at t.
func ArchiveName(t time.Time) string {
	return "vault-backup-" + t.UTC().Format("20060102-150405") + ".zip"
}

// Create writes a complete backup archive to dest. The WAL is checkpointed
// first so the copied database file is self-contained. Attachments are
// hashed as they stream into the archive and the digests are recorded in
// the manifest, alongside the database file's own digest.
func (e *Engine) Create(ctx context.Context, dest string, progress Progress) (archive.Manifest, error) {
	report := func(step string) {
		if progress != nil {
			progress(step)
		}
	}

	report("checkpointing database")
	if err := e.DB.Checkpoint(ctx); err != nil {
		return archive.Manifest{}, err
	}

	folderCount, err := e.DB.CountFolders(ctx)
	if err != nil {
		return archive.Manifest{}, err
	}
	itemCount, err := e.DB.CountItems(ctx)
	if err != nil {
		return archive.Manifest{}, err
	}
	schemaVersion, err := e.DB.SchemaVersion(ctx)
	if err != nil {
		return archive.Manifest{}, err
	}
	attachments, err := e.DB.Attachments(ctx)
	if err != nil {
		return archive.Manifest{}, err
	}

	w, err := archive.NewWriter(dest)
	if err != nil {
		return archive.Manifest{}, err
	}

	report("archiving database")
	dbHash, dbSize, err := w.AddFile(databaseEntry, e.DB.Path())
	if err != nil {
		w.Abort()
		return archive.Manifest{}, err
	}

	manifest := archive.Manifest{
		FormatVersion:    archive.FormatVersion,
		CreatedAt:        time.Now().UTC(),
		AppVersion:       e.AppVersion,
		SchemaVersion:    schemaVersion,
		FolderCount:      folderCount,
		ItemCount:        itemCount,
		AttachmentCount:  int64(len(attachments)),
		TotalBytes:       dbSize,
		DatabaseHash:     dbHash,
		AttachmentHashes: make(map[string]string, len(attachments)),
	}

	for _, a := range attachments {
		report(fmt.Sprintf("archiving attachment %s", a.Filename))
		src, err := e.Blobs.Resolve(a.InternalPath)
		if err != nil {
			w.Abort()
			return archive.Manifest{}, err
		}
		entry := attachmentPrefix + a.InternalPath
		hash, size, err := w.AddFile(entry, src)
		if err != nil {
			w.Abort()
			return archive.Manifest{}, err
		}
		manifest.AttachmentHashes[a.InternalPath] = hash
		manifest.TotalBytes += size
	}

	report("writing manifest")
	if err := w.AddManifest(manifest); err != nil {
		w.Abort()
		return archive.Manifest{}, err
	}
	if err := w.Close(); err != nil {
		return archive.Manifest{}, err
	}

	if e.Log != nil {
		e.Log.Printf("Backup written: %s (%d folders, %d items, %d attachments)",
			dest, folderCount, itemCount, len(attachments))
	}
	return manifest, nil
}

// Verify checks every digest in a backup archive against its contents
// without touching any vault state. A failure wraps archive.ErrIntegrity.
func Verify(path string, progress Progress) (archive.Manifest, error) {
	report := func(step string) {
		if progress != nil {
			progress(step)
		}
	}

	r, err := archive.OpenReader(path)
	if err != nil {
		return archive.Manifest{}, err
	}
	defer r.Close()

	m := r.Manifest
	if m.DatabaseHash == "" {
		return archive.Manifest{}, fmt.Errorf("%w: not a backup archive (no database hash)",
			archive.ErrIntegrity)
	}

	report("verifying database")
	if err := r.VerifyEntry(databaseEntry, m.DatabaseHash); err != nil {
		return archive.Manifest{}, err
	}
	if int64(len(m.AttachmentHashes)) != m.AttachmentCount {
		return archive.Manifest{}, fmt.Errorf("%w: attachment count mismatch", archive.ErrIntegrity)
	}
	for internalPath, hash := range m.AttachmentHashes {
		report(fmt.Sprintf("verifying attachment %s", internalPath))
		if err := r.VerifyEntry(attachmentPrefix+internalPath, hash); err != nil {
			return archive.Manifest{}, err
		}
	}
	return m, nil
}

// Stage extracts a verified backup into stageDir, producing the database
// file and an attachments directory laid out exactly as a live vault
// expects them.
func Stage(path, stageDir string, progress Progress) error {
	report := func(step string) {
		if progress != nil {
			progress(step)
		}
	}

	r, err := archive.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	report("extracting database")
	if _, err := r.Extract(databaseEntry, stageDir); err != nil {
		return err
	}
	for internalPath := range r.Manifest.AttachmentHashes {
		report(fmt.Sprintf("extracting attachment %s", internalPath))
		if _, err := r.Extract(attachmentPrefix+internalPath, stageDir); err != nil {
			return err
		}
	}
	return nil
}

// Swap replaces the live database file and attachments directory with the
// staged ones. The database MUST be closed before calling this. The old
// state is moved aside first and only removed once the staged files are in
// place, so a failed swap leaves the previous state recoverable next to
// the vault.
func Swap(stageDir, dbPath, attachmentsDir string) error {
	oldDB := dbPath + ".old"
	oldAttachments := attachmentsDir + ".old"

	// Move current state aside. The database may legitimately not exist
	// when restoring into a fresh directory.
	if err := renameIfExists(dbPath, oldDB); err != nil {
		return err
	}
	if err := renameIfExists(attachmentsDir, oldAttachments); err != nil {
		_ = renameIfExists(oldDB, dbPath)
		return err
	}
	// WAL sidecars of the closed database are stale now.
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")

	if err := os.Rename(filepath.Join(stageDir, databaseEntry), dbPath); err != nil {
		_ = renameIfExists(oldDB, dbPath)
		_ = renameIfExists(oldAttachments, attachmentsDir)
		return fmt.Errorf("failed to install restored database: %w", err)
	}

	stagedAttachments := filepath.Join(stageDir, "attachments")
	if _, err := os.Stat(stagedAttachments); os.IsNotExist(err) {
		// A backup with zero attachments has no directory to install.
		if err := os.MkdirAll(attachmentsDir, 0755); err != nil {
			return fmt.Errorf("failed to create attachments directory: %w", err)
		}
	} else if err := os.Rename(stagedAttachments, attachmentsDir); err != nil {
		_ = os.Remove(dbPath)
		_ = renameIfExists(oldDB, dbPath)
		_ = renameIfExists(oldAttachments, attachmentsDir)
		return fmt.Errorf("failed to install restored attachments: %w", err)
	}

	_ = os.Remove(oldDB)
	_ = os.RemoveAll(oldAttachments)
	return nil
}

func renameIfExists(from, to string) error {
	if _, err := os.Stat(from); os.IsNotExist(err) {
		return nil
	}
	_ = os.RemoveAll(to)
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to move %s aside: %w", from, err)
	}
	return nil
}
