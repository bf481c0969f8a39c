package backup

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vaultcraft/vaultcraft/internal/archive"
	"github.com/vaultcraft/vaultcraft/internal/blob"
	"github.com/vaultcraft/vaultcraft/internal/db"
	"github.com/vaultcraft/vaultcraft/internal/types"
)

type testVault struct {
	dir   string
	db    *db.DB
	blobs *blob.Store
}

func newTestVault(t *testing.T) *testVault {
	t.Helper()
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	database, err := db.Open(filepath.Join(dir, "vault.db"), logger)
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	blobs, err := blob.Open(filepath.Join(dir, "attachments"), logger)
	if err != nil {
		t.Fatalf("blob.Open failed: %v", err)
	}
	return &testVault{dir: dir, db: database, blobs: blobs}
}

// seed puts one folder, one item, and one attachment into the vault.
func (tv *testVault) seed(t *testing.T) types.Attachment {
	t.Helper()
	ctx := context.Background()
	folder, err := tv.db.CreateFolder(ctx, types.NewFolder{Name: "Docs"})
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	item, err := tv.db.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindDocument, Title: "Insurance",
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	id := uuid.NewString()
	info, err := tv.blobs.Write(id, "policy.txt", strings.NewReader("policy body"))
	if err != nil {
		t.Fatalf("blob write failed: %v", err)
	}
	rec, err := tv.db.CreateAttachment(ctx, types.Attachment{
		ID: id, ItemID: &item.ID, Filename: info.Filename,
		InternalPath: info.InternalPath, Size: info.Size,
		MIME: "text/plain", SHA256: info.SHA256,
	})
	if err != nil {
		t.Fatalf("CreateAttachment failed: %v", err)
	}
	return rec
}

func (tv *testVault) engine() *Engine {
	return &Engine{DB: tv.db, Blobs: tv.blobs, AppVersion: "test", Log: log.New(io.Discard, "", 0)}
}

func TestCreateAndVerify(t *testing.T) {
	tv := newTestVault(t)
	tv.seed(t)
	ctx := context.Background()

	dest := filepath.Join(t.TempDir(), "backup.zip")
	m, err := tv.engine().Create(ctx, dest, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if m.FolderCount != 1 || m.ItemCount != 1 || m.AttachmentCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", m.FolderCount, m.ItemCount, m.AttachmentCount)
	}
	if !strings.HasPrefix(m.DatabaseHash, archive.HashPrefix) {
		t.Errorf("database hash = %q", m.DatabaseHash)
	}

	verified, err := Verify(dest, nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if verified.DatabaseHash != m.DatabaseHash {
		t.Error("manifest changed between create and verify")
	}
}

func TestVerify_TamperedHashFails(t *testing.T) {
	tv := newTestVault(t)
	tv.seed(t)
	ctx := context.Background()

	good := filepath.Join(t.TempDir(), "good.zip")
	m, err := tv.engine().Create(ctx, good, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Rebuild the archive with a lying manifest.
	bad := filepath.Join(t.TempDir(), "bad.zip")
	r, err := archive.OpenReader(good)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	w, err := archive.NewWriter(bad)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range r.Names() {
		if name == archive.ManifestName {
			continue
		}
		src, err := r.Open(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := w.Add(name, src); err != nil {
			t.Fatal(err)
		}
		src.Close()
	}
	m.DatabaseHash = archive.FormatHash(strings.Repeat("0", 64))
	if err := w.AddManifest(m); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(bad, nil); !errors.Is(err, archive.ErrIntegrity) {
		t.Errorf("err = %v, want ErrIntegrity", err)
	}
}

func TestStageAndSwap_RoundTrip(t *testing.T) {
	source := newTestVault(t)
	rec := source.seed(t)
	ctx := context.Background()

	dest := filepath.Join(t.TempDir(), "backup.zip")
	if _, err := source.engine().Create(ctx, dest, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Restore into a fresh directory.
	target := t.TempDir()
	stage := filepath.Join(target, "staging")
	if err := Stage(dest, stage, nil); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	dbPath := filepath.Join(target, "vault.db")
	attachmentsDir := filepath.Join(target, "attachments")
	if err := Swap(stage, dbPath, attachmentsDir); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	restored, err := db.Open(dbPath, logger)
	if err != nil {
		t.Fatalf("restored db unopenable: %v", err)
	}
	defer restored.Close()
	if err := restored.Migrate(ctx); err != nil {
		t.Fatalf("restored Migrate failed: %v", err)
	}

	n, err := restored.CountItems(ctx)
	if err != nil {
		t.Fatalf("CountItems failed: %v", err)
	}
	if n != 1 {
		t.Errorf("restored item count = %d, want 1", n)
	}

	blobPath := filepath.Join(attachmentsDir, filepath.FromSlash(rec.InternalPath))
	data, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("restored blob unreadable: %v", err)
	}
	if string(data) != "policy body" {
		t.Errorf("restored blob content = %q", data)
	}
}

func TestArchiveName(t *testing.T) {
	ts := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	got := ArchiveName(ts)
	if got != "vault-backup-20260901-103000.zip" {
		t.Errorf("ArchiveName = %q", got)
	}
}
