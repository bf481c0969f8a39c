package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/vaultcraft/vaultcraft/internal/archive"
	"github.com/vaultcraft/vaultcraft/internal/blob"
	"github.com/vaultcraft/vaultcraft/internal/db"
	"github.com/vaultcraft/vaultcraft/internal/types"
)

func newEngine(t *testing.T) *Engine {
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
	return &Engine{DB: database, Blobs: blobs, AppVersion: "test", Log: logger}
}

// seedSubtree builds Archive/Car with a tagged document carrying one
// attachment, and returns the exportable folder.
func seedSubtree(t *testing.T, e *Engine) types.Folder {
	t.Helper()
	ctx := context.Background()

	archiveFolder, err := e.DB.CreateFolder(ctx, types.NewFolder{Name: "Archive"})
	if err != nil {
		t.Fatal(err)
	}
	car, err := e.DB.CreateFolder(ctx, types.NewFolder{Name: "Car", ParentID: &archiveFolder.ID})
	if err != nil {
		t.Fatal(err)
	}
	tag, err := e.DB.CreateTag(ctx, types.NewTag{Name: "vehicle", Color: "#00ff00"})
	if err != nil {
		t.Fatal(err)
	}
	item, err := e.DB.CreateItem(ctx, types.NewItem{
		FolderID: car.ID, Kind: types.KindDocument, Title: "Insurance",
		Description: "annual policy", TagIDs: []string{tag.ID},
	})
	if err != nil {
		t.Fatal(err)
	}

	id := uuid.NewString()
	info, err := e.Blobs.Write(id, "policy.pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.DB.CreateAttachment(ctx, types.Attachment{
		ID: id, ItemID: &item.ID, Filename: info.Filename,
		InternalPath: info.InternalPath, Size: info.Size,
		MIME: "application/pdf", SHA256: info.SHA256,
	}); err != nil {
		t.Fatal(err)
	}
	return archiveFolder
}

func TestExport_Manifest(t *testing.T) {
	e := newEngine(t)
	root := seedSubtree(t, e)

	dest := filepath.Join(t.TempDir(), "pkg.zip")
	m, err := e.Export(context.Background(), root.ID, dest)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if m.RootFolder != "Archive" {
		t.Errorf("root folder = %q, want Archive", m.RootFolder)
	}
	if m.FolderCount != 2 || m.ItemCount != 1 || m.AttachmentCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", m.FolderCount, m.ItemCount, m.AttachmentCount)
	}
}

func TestImport_IntoEmptyVault(t *testing.T) {
	src := newEngine(t)
	root := seedSubtree(t, src)
	dest := filepath.Join(t.TempDir(), "pkg.zip")
	if _, err := src.Export(context.Background(), root.ID, dest); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	target := newEngine(t)
	ctx := context.Background()
	result, err := target.Import(ctx, dest, nil)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.FoldersCreated != 2 || result.FoldersReused != 0 {
		t.Errorf("folders created/reused = %d/%d, want 2/0",
			result.FoldersCreated, result.FoldersReused)
	}
	if result.ItemsCreated != 1 || result.ItemsRenamed != 0 {
		t.Errorf("items created/renamed = %d/%d, want 1/0",
			result.ItemsCreated, result.ItemsRenamed)
	}
	if result.AttachmentsCopied != 1 {
		t.Errorf("attachments = %d, want 1", result.AttachmentsCopied)
	}

	car, err := target.DB.FolderByNameUnder(ctx, &result.RootFolderID, "Car")
	if err != nil {
		t.Fatalf("imported subtree missing Car: %v", err)
	}
	items, err := target.DB.ItemsByFolder(ctx, car.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Insurance" {
		t.Fatalf("imported items = %v", items)
	}
	if len(items[0].Tags) != 1 || items[0].Tags[0].Name != "vehicle" {
		t.Errorf("imported tags = %v", items[0].Tags)
	}
}

func TestImport_Twice_MergesAndRenames(t *testing.T) {
	src := newEngine(t)
	root := seedSubtree(t, src)
	dest := filepath.Join(t.TempDir(), "pkg.zip")
	if _, err := src.Export(context.Background(), root.ID, dest); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	target := newEngine(t)
	ctx := context.Background()
	if _, err := target.Import(ctx, dest, nil); err != nil {
		t.Fatalf("first Import failed: %v", err)
	}
	second, err := target.Import(ctx, dest, nil)
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}

	// Both folders already exist and are reused, not duplicated.
	if second.FoldersCreated != 0 || second.FoldersReused != 2 {
		t.Errorf("folders created/reused = %d/%d, want 0/2",
			second.FoldersCreated, second.FoldersReused)
	}
	if second.ItemsRenamed != 1 {
		t.Errorf("items renamed = %d, want 1", second.ItemsRenamed)
	}

	car, err := target.DB.FolderByNameUnder(ctx, &second.RootFolderID, "Car")
	if err != nil {
		t.Fatal(err)
	}
	items, err := target.DB.ItemsByFolder(ctx, car.ID)
	if err != nil {
		t.Fatal(err)
	}
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	sort.Strings(titles)
	want := []string{"Insurance", "Insurance (imported)"}
	if len(titles) != 2 || titles[0] != want[0] || titles[1] != want[1] {
		t.Errorf("titles = %v, want %v", titles, want)
	}

	// The tag is matched, not duplicated.
	tags, err := target.DB.Tags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 {
		t.Errorf("tag count = %d, want 1", len(tags))
	}

	// Each import copied its own attachment blob.
	n, err := target.DB.CountAttachments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("attachment count = %d, want 2", n)
	}
}

func TestImport_UnderDestinationFolder(t *testing.T) {
	src := newEngine(t)
	ctx := context.Background()
	root := seedSubtree(t, src)
	car, err := src.DB.FolderByNameUnder(ctx, &root.ID, "Car")
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "car.zip")
	if _, err := src.Export(ctx, car.ID, dest); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	target := newEngine(t)
	archiveFolder, err := target.DB.CreateFolder(ctx, types.NewFolder{Name: "Archive"})
	if err != nil {
		t.Fatal(err)
	}
	result, err := target.Import(ctx, dest, &archiveFolder.ID)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	got, err := target.DB.FolderByID(ctx, result.RootFolderID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "/Archive/Car" {
		t.Errorf("imported root path = %q, want /Archive/Car", got.Path)
	}
	items, err := target.DB.ItemsByFolder(ctx, got.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Insurance" {
		t.Fatalf("imported items = %v", items)
	}

	// Re-importing merges into the same subtree.
	second, err := target.Import(ctx, dest, &archiveFolder.ID)
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}
	if second.RootFolderID != result.RootFolderID {
		t.Error("second import did not reuse the existing Car folder")
	}
	attachments, err := target.DB.CountAttachments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if attachments != 2 {
		t.Errorf("attachment count = %d, want 2", attachments)
	}
}

func TestImport_DanglingReferenceWritesNothing(t *testing.T) {
	payload := data{
		RootFolderID: "f1",
		Folders:      []types.Folder{{ID: "f1", Name: "Orphanage"}},
		Items: []types.Item{
			{ID: "i1", FolderID: "no-such-folder", Kind: types.KindNote, Title: "Lost"},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "bad.zip")
	w, err := archive.NewWriter(dest)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := w.Add(dataEntry, bytes.NewReader(encoded)); err != nil {
		t.Fatal(err)
	}
	if err := w.AddManifest(archive.Manifest{
		FormatVersion: archive.FormatVersion,
		FolderCount:   1,
		ItemCount:     1,
		RootFolder:    "Orphanage",
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	e := newEngine(t)
	ctx := context.Background()
	if _, err := e.Import(ctx, dest, nil); !errors.Is(err, archive.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}

	// The malformed package is rejected whole; nothing was created.
	n, err := e.DB.CountFolders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("folders created before rejection = %d, want 0", n)
	}
}

func TestImport_ChecklistTasksSurvive(t *testing.T) {
	src := newEngine(t)
	ctx := context.Background()
	folder, err := src.DB.CreateFolder(ctx, types.NewFolder{Name: "Trips"})
	if err != nil {
		t.Fatal(err)
	}
	list, err := src.DB.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindChecklist, Title: "Packing",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, title := range []string{"passport", "charger", "socks"} {
		if _, err := src.DB.CreateTask(ctx, types.NewTask{ItemID: list.ID, Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	tasks, _ := src.DB.TasksByItem(ctx, list.ID)
	if _, err := src.DB.SetTaskDone(ctx, tasks[0].ID, true); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "pkg.zip")
	if _, err := src.Export(ctx, folder.ID, dest); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	target := newEngine(t)
	result, err := target.Import(ctx, dest, nil)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	items, err := target.DB.ItemsByFolder(ctx, result.RootFolderID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("imported items = %d, want 1", len(items))
	}
	got, err := target.DB.TasksByItem(ctx, items[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("imported tasks = %d, want 3", len(got))
	}
	if got[0].Title != "passport" || !got[0].Done {
		t.Errorf("first task = %q done=%v, want passport done", got[0].Title, got[0].Done)
	}
	if got[2].Title != "socks" || got[2].Done {
		t.Errorf("last task = %q done=%v, want socks not done", got[2].Title, got[2].Done)
	}
}
