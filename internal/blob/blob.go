// Package blob stores attachment payloads on disk, outside the database.
//
// Each blob lives at <root>/<attachment-id>/<original-filename>; the
// per-id directory keeps colliding filenames apart and makes removal a
// single RemoveAll. The store never interprets content beyond hashing and
// MIME sniffing at ingest.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Info describes an ingested blob: everything the database record needs.
type Info struct {
	InternalPath string // "<id>/<filename>", relative to the store root
	Filename     string
	Size         int64
	MIME         string
	SHA256       string // hex, no prefix
}

// Store manages the attachment directory of one vault.
type Store struct {
	root string
	log  *log.Logger
}

// Open returns a store rooted at dir, creating it if needed.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[blob] ", log.LstdFlags)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment store: %w", err)
	}
	return &Store{root: dir, log: logger}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Ingest copies the file at src into the store under the given attachment
// id, hashing it as it streams and sniffing the MIME type from content.
func (s *Store) Ingest(id, src string) (Info, error) {
	in, err := os.Open(src)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	filename := filepath.Base(src)
	info, err := s.Write(id, filename, in)
	if err != nil {
		return Info{}, err
	}

	mt, err := mimetype.DetectFile(filepath.Join(s.root, info.InternalPath))
	if err != nil {
		s.log.Printf("Warning: MIME detection failed for %s: %v", info.InternalPath, err)
		info.MIME = "application/octet-stream"
	} else {
		info.MIME = mt.String()
	}
	return info, nil
}

// Write streams r into the store under id/filename and returns the blob's
// size and hash. The MIME field is left empty; Ingest fills it for local
// files, and importers carry it from the package manifest instead.
func (s *Store) Write(id, filename string, r io.Reader) (Info, error) {
	if id == "" || filename == "" {
		return Info{}, fmt.Errorf("blob id and filename are required")
	}
	filename = sanitizeFilename(filename)

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Info{}, fmt.Errorf("failed to create blob directory: %w", err)
	}

	dst := filepath.Join(dir, filename)
	out, err := os.Create(dst)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create blob file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), r)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return Info{}, fmt.Errorf("failed to write blob: %w", err)
	}

	return Info{
		InternalPath: id + "/" + filename,
		Filename:     filename,
		Size:         size,
		SHA256:       hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Resolve maps an internal path to the absolute path of the blob file. It
// rejects paths that would escape the store root.
func (s *Store) Resolve(internalPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(internalPath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid internal path %q", internalPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Open opens the blob at internalPath for reading.
func (s *Store) Open(internalPath string) (*os.File, error) {
	abs, err := s.Resolve(internalPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", internalPath, err)
	}
	return f, nil
}

// Remove deletes the blob's whole per-id directory. Removing a blob that is
// already gone is not an error.
func (s *Store) Remove(internalPath string) error {
	clean := filepath.Clean(filepath.FromSlash(internalPath))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("invalid internal path %q", internalPath)
	}
	id := strings.SplitN(filepath.ToSlash(clean), "/", 2)[0]
	if id == "" || id == "." {
		return fmt.Errorf("invalid internal path %q", internalPath)
	}
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("failed to remove blob %s: %w", internalPath, err)
	}
	return nil
}

// RemoveAll deletes every blob named in paths, logging failures instead of
// stopping. Used after cascading deletes where the rows are already gone.
func (s *Store) RemoveAll(paths []string) {
	for _, p := range paths {
		if err := s.Remove(p); err != nil {
			s.log.Printf("Warning: %v", err)
		}
	}
}

// sanitizeFilename strips any path components from a user-supplied name.
func sanitizeFilename(name string) string {
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "attachment"
	}
	return name
}
