package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreWritesFileUnderItemDir(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	stored, err := s.Store("item-1", "report.json", strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored.OriginalName != "report.json" {
		t.Errorf("original name = %q", stored.OriginalName)
	}
	if stored.SizeBytes != int64(len(`{"ok":true}`)) {
		t.Errorf("size = %d", stored.SizeBytes)
	}
	if !strings.Contains(stored.MediaType, "json") {
		t.Errorf("media type = %q", stored.MediaType)
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), stored.StoragePath))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("content mismatch: %q", data)
	}
}

func TestStoreSameNameTwiceDoesNotCollide(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	a, err := s.Store("item-1", "out.txt", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	b, err := s.Store("item-1", "out.txt", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if a.StoragePath == b.StoragePath {
		t.Errorf("paths collide: %s", a.StoragePath)
	}
}

func TestStoreRejectsPathTraversal(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	stored, err := s.Store("item-1", "../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		return // outright rejection is fine too
	}
	if strings.Contains(stored.StoragePath, "..") {
		t.Errorf("traversal survived: %s", stored.StoragePath)
	}
}
