// Package artifact stores submitted result files on the local filesystem.
// The engine only sees the returned pointer; byte storage stays replaceable.
package artifact

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StoredFile is the pointer returned for a persisted upload.
type StoredFile struct {
	OriginalName string `json:"original_name"`
	StoragePath  string `json:"storage_path"`
	MediaType    string `json:"media_type"`
	SizeBytes    int64  `json:"size_bytes"`
}

// Storage writes artifacts under a root directory, one subdirectory per item.
type Storage struct {
	root string
}

func NewStorage(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Storage{root: root}, nil
}

// Store persists one uploaded file for an item and returns its pointer.
// Stored files are never rewritten; a random prefix keeps repeated uploads
// of the same filename from colliding.
func (s *Storage) Store(itemID, filename string, r io.Reader) (*StoredFile, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid artifact filename %q", filename)
	}
	dir := filepath.Join(s.root, itemID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	stored := uuid.NewString()[:8] + "-" + name
	path := filepath.Join(dir, stored)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(name))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return &StoredFile{
		OriginalName: name,
		StoragePath:  filepath.Join(itemID, stored),
		MediaType:    mediaType,
		SizeBytes:    size,
	}, nil
}

// Root returns the storage root directory.
func (s *Storage) Root() string { return s.root }
