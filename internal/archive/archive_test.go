package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestArchive(t *testing.T, dest string, entries map[string]string) Manifest {
	t.Helper()
	w, err := NewWriter(dest)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	m := Manifest{
		FormatVersion:    FormatVersion,
		CreatedAt:        time.Now().UTC(),
		AttachmentHashes: map[string]string{},
	}
	for name, content := range entries {
		hash, n, err := w.Add(name, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Add(%s) failed: %v", name, err)
		}
		m.AttachmentHashes[name] = hash
		m.TotalBytes += n
	}
	if err := w.AddManifest(m); err != nil {
		t.Fatalf("AddManifest failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.zip")
	m := writeTestArchive(t, dest, map[string]string{
		"one.txt": "first",
		"two.txt": "second",
	})

	r, err := OpenReader(dest)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer r.Close()

	if r.Manifest.FormatVersion != FormatVersion {
		t.Errorf("format version = %q", r.Manifest.FormatVersion)
	}
	for name, hash := range m.AttachmentHashes {
		if err := r.VerifyEntry(name, hash); err != nil {
			t.Errorf("VerifyEntry(%s) failed: %v", name, err)
		}
	}

	f, err := r.Open("one.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "first" {
		t.Errorf("entry content = %q", data)
	}
}

func TestOpenReader_MissingManifest(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bare.zip")
	w, err := NewWriter(dest)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := w.Add("stray.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenReader(dest); !errors.Is(err, ErrIntegrity) {
		t.Errorf("err = %v, want ErrIntegrity", err)
	}
}

func TestOpenReader_UnsupportedVersion(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "future.zip")
	w, err := NewWriter(dest)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddManifest(Manifest{FormatVersion: "99"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenReader(dest); !errors.Is(err, ErrIntegrity) {
		t.Errorf("err = %v, want ErrIntegrity", err)
	}
}

func TestVerifyEntry_DetectsMismatch(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.zip")
	writeTestArchive(t, dest, map[string]string{"f.txt": "content"})

	r, err := OpenReader(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	wrong := FormatHash(strings.Repeat("0", 64))
	if err := r.VerifyEntry("f.txt", wrong); !errors.Is(err, ErrIntegrity) {
		t.Errorf("err = %v, want ErrIntegrity", err)
	}
}

func TestWriter_NoPartialArchiveOnAbort(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "aborted.zip")
	w, err := NewWriter(dest)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := w.Add("f.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	w.Abort()

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("aborted archive left at destination")
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestExtract_RejectsTraversal(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.zip")
	writeTestArchive(t, dest, map[string]string{"../escape.txt": "x"})

	r, err := OpenReader(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, err := r.Extract("../escape.txt", t.TempDir()); !errors.Is(err, ErrIntegrity) {
		t.Errorf("err = %v, want ErrIntegrity", err)
	}
}
