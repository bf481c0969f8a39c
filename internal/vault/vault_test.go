package vault

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vaultcraft/vaultcraft/internal/archive"
	"github.com/vaultcraft/vaultcraft/internal/types"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(context.Background(), t.TempDir(), "test", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func writeSourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpen_CreatesLayout(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(context.Background(), dir, "test", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer v.Close()

	if _, err := os.Stat(filepath.Join(dir, databaseFile)); err != nil {
		t.Errorf("database file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, attachmentsDir)); err != nil {
		t.Errorf("attachments dir missing: %v", err)
	}
}

func TestAttachFile_RoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	folder, err := v.DB.CreateFolder(ctx, types.NewFolder{Name: "Docs"})
	if err != nil {
		t.Fatal(err)
	}
	item, err := v.DB.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindDocument, Title: "Doc",
	})
	if err != nil {
		t.Fatal(err)
	}

	src := writeSourceFile(t, "notes.txt", "attachment body")
	rec, err := v.AttachFile(ctx, item.ID, src)
	if err != nil {
		t.Fatalf("AttachFile failed: %v", err)
	}
	if rec.Filename != "notes.txt" || rec.Size != int64(len("attachment body")) {
		t.Errorf("record = %+v", rec)
	}

	f, _, err := v.OpenAttachment(ctx, rec.ID)
	if err != nil {
		t.Fatalf("OpenAttachment failed: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "attachment body" {
		t.Errorf("content = %q", data)
	}
}

func TestAttachFile_UnknownItemLeavesNoBlob(t *testing.T) {
	v := newTestVault(t)
	src := writeSourceFile(t, "f.txt", "x")

	if _, err := v.AttachFile(context.Background(), "no-such-item", src); err == nil {
		t.Fatal("attach to missing item succeeded")
	}
	entries, err := os.ReadDir(v.Blobs.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("orphaned blobs left behind: %v", entries)
	}
}

func TestDeleteItem_RemovesBlobs(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	folder, _ := v.DB.CreateFolder(ctx, types.NewFolder{Name: "Docs"})
	item, _ := v.DB.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindDocument, Title: "Doc",
	})
	rec, err := v.AttachFile(ctx, item.ID, writeSourceFile(t, "f.txt", "x"))
	if err != nil {
		t.Fatal(err)
	}

	if err := v.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	abs, _ := v.Blobs.Resolve(rec.InternalPath)
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("blob survived item deletion")
	}
}

func TestDeleteFolder_RemovesTaskBlobs(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	folder, _ := v.DB.CreateFolder(ctx, types.NewFolder{Name: "Lists"})
	item, _ := v.DB.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindChecklist, Title: "List",
	})
	task, err := v.DB.CreateTask(ctx, types.NewTask{ItemID: item.ID, Title: "step"})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := v.AttachFileToTask(ctx, task.ID, writeSourceFile(t, "f.txt", "x"))
	if err != nil {
		t.Fatal(err)
	}

	if err := v.DeleteFolder(ctx, folder.ID); err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}
	abs, _ := v.Blobs.Resolve(rec.InternalPath)
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("task blob survived folder deletion")
	}
}

func TestExclusiveOperations_Busy(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	v.busy.Store(true)
	defer v.busy.Store(false)

	if err := v.CreateBackup(ctx, filepath.Join(t.TempDir(), "b.zip"), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("CreateBackup err = %v, want ErrBusy", err)
	}
	if err := v.RestoreBackup(ctx, "irrelevant.zip", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("RestoreBackup err = %v, want ErrBusy", err)
	}
	if err := v.ExportPackage(ctx, "id", "irrelevant.zip"); !errors.Is(err, ErrBusy) {
		t.Errorf("ExportPackage err = %v, want ErrBusy", err)
	}
	if _, err := v.ImportPackage(ctx, "irrelevant.zip", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("ImportPackage err = %v, want ErrBusy", err)
	}
}

func TestRestoreBackup_RoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	folder, _ := v.DB.CreateFolder(ctx, types.NewFolder{Name: "Keep"})
	item, _ := v.DB.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindNote, Title: "Survivor", Body: "original",
	})
	if _, err := v.AttachFile(ctx, item.ID, writeSourceFile(t, "a.txt", "blob")); err != nil {
		t.Fatal(err)
	}

	backupPath := filepath.Join(t.TempDir(), "b.zip")
	if err := v.CreateBackup(ctx, backupPath, nil); err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	// Diverge, then restore.
	if err := v.DeleteFolder(ctx, folder.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := v.DB.CreateFolder(ctx, types.NewFolder{Name: "PostBackup"}); err != nil {
		t.Fatal(err)
	}

	if err := v.RestoreBackup(ctx, backupPath, nil); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}

	results, err := v.DB.Search(ctx, "survivor", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search after restore failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("restored item not found")
	}
	if _, err := v.DB.FolderByNameUnder(ctx, nil, "PostBackup"); err == nil {
		t.Error("post-backup folder survived restore")
	}

	// A safety snapshot of the pre-restore state must exist.
	snaps, err := os.ReadDir(filepath.Join(v.Dir, snapshotsDir))
	if err != nil || len(snaps) == 0 {
		t.Errorf("no safety snapshot written: %v", err)
	}
}

func TestRestoreBackup_CorruptArchiveLeavesVaultUntouched(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if _, err := v.DB.CreateFolder(ctx, types.NewFolder{Name: "Precious"}); err != nil {
		t.Fatal(err)
	}

	// An archive with a manifest but no database entry fails verification.
	badPath := filepath.Join(t.TempDir(), "bad.zip")
	w, err := archive.NewWriter(badPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddManifest(archive.Manifest{
		FormatVersion: archive.FormatVersion,
		DatabaseHash:  archive.FormatHash(strings.Repeat("0", 64)),
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := v.RestoreBackup(ctx, badPath, nil); !errors.Is(err, archive.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}

	if _, err := v.DB.FolderByNameUnder(ctx, nil, "Precious"); err != nil {
		t.Errorf("vault lost data after failed restore: %v", err)
	}
	// The failure is on the audit log.
	entries, err := v.DB.ListAudit(ctx, types.AuditFilters{Event: types.EventError})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("error audit entries = %d, want 1", len(entries))
	}
}

func TestRestoreBackup_UnusableDatabaseDetectedBeforeSwap(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if _, err := v.DB.CreateFolder(ctx, types.NewFolder{Name: "Precious"}); err != nil {
		t.Fatal(err)
	}

	// Every digest matches the manifest, but the database entry's bytes
	// are not a SQLite file.
	badPath := filepath.Join(t.TempDir(), "bad.zip")
	w, err := archive.NewWriter(badPath)
	if err != nil {
		t.Fatal(err)
	}
	hash, _, err := w.Add(databaseFile, strings.NewReader("not a database"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddManifest(archive.Manifest{
		FormatVersion: archive.FormatVersion,
		DatabaseHash:  hash,
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := v.RestoreBackup(ctx, badPath, nil); !errors.Is(err, archive.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}

	// The live vault stays open and intact.
	if v.DB.Closed() {
		t.Fatal("live database left closed after failed restore")
	}
	if _, err := v.DB.FolderByNameUnder(ctx, nil, "Precious"); err != nil {
		t.Errorf("vault lost data after failed restore: %v", err)
	}
}

func TestStats(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	folder, _ := v.DB.CreateFolder(ctx, types.NewFolder{Name: "F"})
	if _, err := v.DB.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindNote, Title: "n",
	}); err != nil {
		t.Fatal(err)
	}

	s, err := v.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if s.Folders != 1 || s.Items != 1 || s.Attachments != 0 {
		t.Errorf("stats = %+v", s)
	}
	if s.DatabaseBytes == 0 {
		t.Error("database size not reported")
	}
}
