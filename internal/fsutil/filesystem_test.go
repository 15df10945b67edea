package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_ReadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "b"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := OSFileSystem{}.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "a.txt" || !entries[1].IsDir() {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	mfs.WriteFile("/root/test.txt", testData)

	data, err := mfs.ReadFile("/root/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	f, err := mfs.Open("/root/test.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil || string(got) != string(testData) {
		t.Errorf("Open/ReadAll = %q, %v", got, err)
	}
}

func TestMemoryFileSystem_ImplicitDirs(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/pdata/p1/cap/site.ini", []byte("a=b"))
	mfs.MkdirAll("/pdata/p1/empty")

	if !IsDir(mfs, "/pdata/p1") || !IsDir(mfs, "/pdata/p1/cap") {
		t.Error("expected parent directories to exist")
	}

	entries, err := mfs.ReadDir("/pdata/p1")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name() != "cap" || entries[1].Name() != "empty" {
		t.Errorf("unexpected order: %s, %s", entries[0].Name(), entries[1].Name())
	}
	if !entries[0].IsDir() {
		t.Error("cap should be a directory")
	}

	if _, err := mfs.ReadDir("/missing"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestReadFileMax(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/f.txt", []byte("0123456789"))

	if _, err := ReadFileMax(mfs, "/f.txt", 5); err == nil {
		t.Error("expected size error")
	}
	data, err := ReadFileMax(mfs, "/f.txt", 10)
	if err != nil || len(data) != 10 {
		t.Errorf("ReadFileMax = %d bytes, %v", len(data), err)
	}
	if _, err := ReadFileMax(mfs, "/f.txt", 0); err != nil {
		t.Errorf("unbounded read failed: %v", err)
	}
	if _, err := ReadFileMax(mfs, "/nope", 10); err == nil {
		t.Error("expected error for missing file")
	}
}
