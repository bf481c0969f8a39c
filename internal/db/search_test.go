package db

import (
	"context"
	"errors"
	"testing"

	"github.com/vaultcraft/vaultcraft/internal/types"
)

func TestSearch_MatchesAllTextFields(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	folder := mustCreateFolder(t, database, "Inbox", nil)

	if _, err := database.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindNote, Title: "Groceries",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := database.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindNote, Title: "Misc",
		Description: "weekly groceries run",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := database.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindNote, Title: "Journal",
		Body: "bought groceries today",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := database.CreateItem(ctx, types.NewItem{
		FolderID: folder.ID, Kind: types.KindNote, Title: "Unrelated",
	}); err != nil {
		t.Fatal(err)
	}

	results, err := database.Search(ctx, "groceries", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("result count = %d, want 3", len(results))
	}
}

func TestSearch_UpdatesFollowEdits(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	folder := mustCreateFolder(t, database, "Inbox", nil)
	item := mustCreateItem(t, database, folder.ID, types.KindNote, "Old title")

	newTitle := "Completely different"
	if _, err := database.UpdateItem(ctx, item.ID, types.ItemUpdate{Title: &newTitle}); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	results, err := database.Search(ctx, "old", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("stale index: old title still matches")
	}
	results, err = database.Search(ctx, "different", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("new title not indexed")
	}
}

func TestSearch_DeletedItemsDisappear(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	folder := mustCreateFolder(t, database, "Inbox", nil)
	item := mustCreateItem(t, database, folder.ID, types.KindNote, "ephemeral")

	if _, err := database.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	results, err := database.Search(ctx, "ephemeral", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Error("deleted item still in index")
	}
}

func TestSearch_PreservesDiacritics(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	folder := mustCreateFolder(t, database, "Inbox", nil)
	mustCreateItem(t, database, folder.ID, types.KindNote, "Declaração anual")

	results, err := database.Search(ctx, "declaração", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("accented query: result count = %d, want 1", len(results))
	}
}

func TestSearch_Filters(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	docs := mustCreateFolder(t, database, "Docs", nil)
	notes := mustCreateFolder(t, database, "Notes", nil)
	tag, _ := database.CreateTag(ctx, types.NewTag{Name: "tax"})

	if _, err := database.CreateItem(ctx, types.NewItem{
		FolderID: docs.ID, Kind: types.KindDocument, Title: "Budget 2026",
		TagIDs: []string{tag.ID},
	}); err != nil {
		t.Fatal(err)
	}
	mustCreateItem(t, database, notes.ID, types.KindNote, "Budget thoughts")

	results, err := database.Search(ctx, "budget", types.SearchFilters{Kind: types.KindDocument})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Item.Title != "Budget 2026" {
		t.Errorf("kind filter: got %d results", len(results))
	}

	results, err = database.Search(ctx, "budget", types.SearchFilters{FolderID: notes.ID})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Item.Title != "Budget thoughts" {
		t.Errorf("folder filter: got %d results", len(results))
	}

	results, err = database.Search(ctx, "budget", types.SearchFilters{TagIDs: []string{tag.ID}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Item.Title != "Budget 2026" {
		t.Errorf("tag filter: got %d results", len(results))
	}
}

func TestCheckSearchIndex_DetectsAndRepairsDrift(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	folder := mustCreateFolder(t, database, "Inbox", nil)
	mustCreateItem(t, database, folder.ID, types.KindNote, "healthy")

	if err := database.CheckSearchIndex(ctx); err != nil {
		t.Fatalf("healthy index reported inconsistent: %v", err)
	}

	// Corrupt the index behind the triggers' back.
	if _, err := database.conn.ExecContext(ctx, `DELETE FROM items_fts`); err != nil {
		t.Fatalf("failed to corrupt index: %v", err)
	}
	err := database.CheckSearchIndex(ctx)
	if !errors.Is(err, ErrIndexInconsistency) {
		t.Fatalf("err = %v, want ErrIndexInconsistency", err)
	}

	if err := database.RebuildSearchIndex(ctx); err != nil {
		t.Fatalf("RebuildSearchIndex failed: %v", err)
	}
	if err := database.CheckSearchIndex(ctx); err != nil {
		t.Errorf("index still inconsistent after rebuild: %v", err)
	}
	results, err := database.Search(ctx, "healthy", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("rebuilt index: result count = %d, want 1", len(results))
	}
}
