package blob

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "attachments"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestIngest_ComputesMetadata(t *testing.T) {
	s := newTestStore(t)

	src := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(src, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := s.Ingest("id-1", src)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if info.InternalPath != "id-1/hello.txt" {
		t.Errorf("internal path = %q, want id-1/hello.txt", info.InternalPath)
	}
	if info.Size != 11 {
		t.Errorf("size = %d, want 11", info.Size)
	}
	// sha256("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if info.SHA256 != want {
		t.Errorf("sha256 = %s, want %s", info.SHA256, want)
	}
	if !strings.HasPrefix(info.MIME, "text/plain") {
		t.Errorf("mime = %q, want text/plain", info.MIME)
	}

	abs, err := s.Resolve(info.InternalPath)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("blob unreadable: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("blob content = %q", data)
	}
}

func TestWrite_SameFilenameDifferentIDs(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Write("id-a", "receipt.pdf", strings.NewReader("first"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	b, err := s.Write("id-b", "receipt.pdf", strings.NewReader("second"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if a.InternalPath == b.InternalPath {
		t.Error("colliding filenames share a path")
	}
	if a.SHA256 == b.SHA256 {
		t.Error("different contents share a hash")
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)

	info, err := s.Write("id-1", "f.bin", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Remove(info.InternalPath); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	abs, _ := s.Resolve(info.InternalPath)
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("blob still present after Remove")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "id-1")); !os.IsNotExist(err) {
		t.Error("blob directory still present after Remove")
	}
	// Removing again is fine.
	if err := s.Remove(info.InternalPath); err != nil {
		t.Errorf("second Remove failed: %v", err)
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	s := newTestStore(t)
	for _, bad := range []string{"../../etc/passwd", "/abs/path", "..", ""} {
		if _, err := s.Resolve(bad); err == nil {
			t.Errorf("Resolve(%q) accepted", bad)
		}
	}
}

func TestWrite_SanitizesFilename(t *testing.T) {
	s := newTestStore(t)
	info, err := s.Write("id-1", "../../evil.sh", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.Contains(info.InternalPath, "..") {
		t.Errorf("internal path kept traversal: %q", info.InternalPath)
	}
}
