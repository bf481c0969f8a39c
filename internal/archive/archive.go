// Package archive reads and writes the vault's ZIP container format, used
// by both full backups and package exports. Every archive carries a
// manifest.json with counts and SHA-256 digests so its integrity can be
// verified before anything touches a live vault.
package archive

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatVersion is written into every manifest. Readers reject archives
// with a version they don't understand.
const FormatVersion = "1"

// ManifestName is the manifest's path inside the archive.
const ManifestName = "manifest.json"

// ErrIntegrity is returned when an archive's contents don't match its
// manifest. Nothing read from such an archive may be applied.
var ErrIntegrity = errors.New("archive integrity check failed")

// Manifest describes an archive's contents. DatabaseHash is empty for
// package exports (which carry data.json instead of a database file), and
// RootFolder is empty for full backups. TotalBytes is the sum of the
// uncompressed entry sizes, manifest excluded; the finished archive's own
// size cannot be recorded inside itself.
type Manifest struct {
	FormatVersion    string            `json:"format_version"`
	CreatedAt        time.Time         `json:"created_at"`
	AppVersion       string            `json:"app_version"`
	SchemaVersion    int               `json:"schema_version"`
	FolderCount      int64             `json:"folder_count"`
	ItemCount        int64             `json:"item_count"`
	AttachmentCount  int64             `json:"attachment_count"`
	TotalBytes       int64             `json:"total_bytes"`
	DatabaseHash     string            `json:"database_hash,omitempty"`
	AttachmentHashes map[string]string `json:"attachment_hashes,omitempty"`
	RootFolder       string            `json:"root_folder,omitempty"`
}

// HashPrefix marks digests in manifests, e.g. "sha256:ab12...".
const HashPrefix = "sha256:"

// FormatHash renders a raw hex digest in the manifest's notation.
func FormatHash(hexDigest string) string {
	return HashPrefix + hexDigest
}

// HashFile returns the file's digest in manifest notation.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return hashReader(f)
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash contents: %w", err)
	}
	return FormatHash(hex.EncodeToString(h.Sum(nil))), nil
}

// Writer builds an archive at a temporary path and renames it into place
// on Close, so a crash mid-write never leaves a plausible-looking archive
// at the destination.
type Writer struct {
	dest    string
	tmpPath string
	file    *os.File
	zw      *zip.Writer
}

// NewWriter starts an archive that will land at dest.
func NewWriter(dest string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	tmpPath := dest + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	return &Writer{dest: dest, tmpPath: tmpPath, file: f, zw: zip.NewWriter(f)}, nil
}

// AddFile copies the file at src into the archive under name and returns
// its digest in manifest notation.
func (w *Writer) AddFile(name, src string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	return w.Add(name, in)
}

// Add streams r into the archive under name, returning the digest and size
// of what was written.
func (w *Writer) Add(name string, r io.Reader) (string, int64, error) {
	entry, err := w.zw.Create(name)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(entry, h), r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return FormatHash(hex.EncodeToString(h.Sum(nil))), n, nil
}

// AddManifest serializes the manifest into the archive. Call it last so the
// manifest can describe everything already added.
func (w *Writer) AddManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	entry, err := w.zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("failed to create manifest entry: %w", err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Close finalizes the archive and moves it to its destination.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		w.abort()
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.abort()
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.dest); err != nil {
		w.abort()
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

// Abort discards the partially written archive.
func (w *Writer) Abort() {
	_ = w.zw.Close()
	w.abort()
}

func (w *Writer) abort() {
	_ = w.file.Close()
	_ = os.Remove(w.tmpPath)
}

// Reader opens an archive and exposes its manifest and entries.
type Reader struct {
	zr       *zip.ReadCloser
	Manifest Manifest
}

// OpenReader opens the archive at path, requiring a parseable manifest with
// a supported format version.
func OpenReader(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}

	r := &Reader{zr: zr}
	mf, err := r.open(ManifestName)
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: missing %s", ErrIntegrity, ManifestName)
	}
	err = json.NewDecoder(mf).Decode(&r.Manifest)
	_ = mf.Close()
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: unreadable manifest: %v", ErrIntegrity, err)
	}
	if r.Manifest.FormatVersion != FormatVersion {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: unsupported format version %q",
			ErrIntegrity, r.Manifest.FormatVersion)
	}
	return r, nil
}

// Close releases the underlying archive file.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Open returns a reader for the named entry.
func (r *Reader) Open(name string) (io.ReadCloser, error) {
	f, err := r.open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: missing entry %s", ErrIntegrity, name)
	}
	return f, nil
}

func (r *Reader) open(name string) (io.ReadCloser, error) {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("no entry %s", name)
}

// Has reports whether the archive contains the named entry.
func (r *Reader) Has(name string) bool {
	for _, f := range r.zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Names returns every entry name in the archive, manifest included.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// VerifyEntry checks one entry's contents against an expected digest in
// manifest notation.
func (r *Reader) VerifyEntry(name, expected string) error {
	f, err := r.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	actual, err := hashReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if actual != expected {
		return fmt.Errorf("%w: digest mismatch for %s", ErrIntegrity, name)
	}
	return nil
}

// Extract copies the named entry to a file on disk, refusing entry names
// that would escape destDir.
func (r *Reader) Extract(name, destDir string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: unsafe entry name %q", ErrIntegrity, name)
	}
	src, err := r.Open(name)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dest := filepath.Join(destDir, clean)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	_, err = io.Copy(out, src)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("failed to extract %s: %w", name, err)
	}
	return dest, nil
}
