package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_RenameReplaces(t *testing.T) {
	dir := t.TempDir()
	osfs := OSFileSystem{}

	tmp := filepath.Join(dir, "pc.pcd.tmp")
	final := filepath.Join(dir, "pc.pcd")
	if err := os.WriteFile(final, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := osfs.Create(tmp)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("new")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := osfs.Rename(tmp, final); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if osfs.Exists(tmp) {
		t.Error("temp file should be gone after rename")
	}
	data, err := osfs.ReadFile(final)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("expected 'new', got %q", data)
	}
}

func TestOSFileSystem_Exists(t *testing.T) {
	osfs := OSFileSystem{}
	if !osfs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if osfs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/out", 0755); err != nil {
		t.Fatal(err)
	}

	w, err := mfs.Create("/out/created.txt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("created content")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, _ := mfs.ReadFile("/out/created.txt")
	if len(data) != 0 {
		t.Errorf("content visible before Close: %q", data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err = mfs.ReadFile("/out/created.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "created content" {
		t.Errorf("expected 'created content', got %q", data)
	}
}

func TestMemoryFileSystem_CreateNeedsParent(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_, err := mfs.Create("/missing/dir/file.txt")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.WriteFile("/a.tmp", []byte("A"), 0644)
	_ = mfs.WriteFile("/a", []byte("old"), 0644)

	if err := mfs.Rename("/a.tmp", "/a"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if mfs.Exists("/a.tmp") {
		t.Error("source should not exist after rename")
	}
	data, _ := mfs.ReadFile("/a")
	if string(data) != "A" {
		t.Errorf("expected 'A', got %q", data)
	}

	if err := mfs.Rename("/nope", "/a"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_FailOn(t *testing.T) {
	mfs := NewMemoryFileSystem()
	boom := errors.New("boom")

	mfs.FailOn("write", "/f", boom)
	w, err := mfs.Create("/f")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, boom) {
		t.Errorf("Write error = %v, want boom", err)
	}
	_ = w.Close()

	mfs.FailOn("rename", "/g", boom)
	if err := mfs.Rename("/f", "/g"); !errors.Is(err, boom) {
		t.Errorf("Rename error = %v, want boom", err)
	}

	mfs.FailOn("rename", "/g", nil)
	if err := mfs.Rename("/f", "/g"); err != nil {
		t.Errorf("Rename after clearing failure: %v", err)
	}
}

func TestMemoryFileSystem_StatAndOpen(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.MkdirAll("/a/b", 0755)
	_ = mfs.WriteFile("/a/b/c.txt", []byte("12345"), 0600)

	info, err := mfs.Stat("/a")
	if err != nil || !info.IsDir() {
		t.Fatalf("Stat(/a) = %v, %v; want dir", info, err)
	}
	info, err = mfs.Stat("/a/b/c.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 5 || info.Mode() != 0600 {
		t.Errorf("unexpected info size=%d mode=%v", info.Size(), info.Mode())
	}

	f, err := mfs.Open("/a/b/c.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil || string(data) != "12345" {
		t.Errorf("ReadAll = %q, %v", data, err)
	}
}

func TestMemoryFileSystem_Remove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.MkdirAll("/d", 0755)
	_ = mfs.WriteFile("/d/f", []byte("x"), 0644)

	if err := mfs.Remove("/d"); err == nil {
		t.Error("expected error removing non-empty directory")
	}
	if err := mfs.Remove("/d/f"); err != nil {
		t.Fatalf("Remove file: %v", err)
	}
	if err := mfs.Remove("/d"); err != nil {
		t.Fatalf("Remove dir: %v", err)
	}
	if err := mfs.Remove("/d"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if got := mfs.Files(); len(got) != 0 {
		t.Errorf("Files() = %v, want empty", got)
	}
}

func TestFileSystemInterface(t *testing.T) {
	var _ FileSystem = OSFileSystem{}
	var _ FileSystem = NewMemoryFileSystem()
}
