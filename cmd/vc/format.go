package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vaultcraft/vaultcraft/internal/types"
	"github.com/vaultcraft/vaultcraft/internal/ui"
)

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// printItem renders one item line: kind, title, tags, and due date.
func printItem(it types.Item) {
	line := fmt.Sprintf("%-9s %s", it.Kind, ui.Accent(it.Title))
	for _, t := range it.Tags {
		line += " " + ui.Muted("#"+t.Name)
	}
	if it.DueAt != nil {
		due := "due " + humanize.Time(*it.DueAt)
		if it.DueAt.Before(time.Now()) {
			line += " " + ui.Err(due)
		} else {
			line += " " + ui.Warn(due)
		}
	}
	fmt.Printf("%s\n  %s\n", line, ui.Muted(it.ID))
}

func printFolder(f types.Folder) {
	fmt.Printf("%s\n  %s\n", ui.Accent(f.Path), ui.Muted(f.ID))
}

func printTask(t types.ChecklistTask) {
	mark := "[ ]"
	if t.Done {
		mark = ui.Pass("[x]")
	}
	fmt.Printf("%2d %s %s\n     %s\n", t.Position, mark, t.Title, ui.Muted(t.ID))
}

func printAttachment(a types.Attachment) {
	fmt.Printf("%s (%s, %s)\n  %s\n",
		ui.Accent(a.Filename), a.MIME, humanBytes(a.Size), ui.Muted(a.ID))
}
