package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomic_CreatesFileAndDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out", "Makefile")

	if err := WriteAtomic(path, []byte("all:\n")); err != nil {
		t.Fatalf("WriteAtomic() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "all:\n" {
		t.Errorf("content = %q, want %q", data, "all:\n")
	}
}

func TestWriteAtomic_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Makefile")
	os.WriteFile(path, []byte("old"), 0o644)

	if err := WriteAtomic(path, []byte("new")); err != nil {
		t.Fatalf("WriteAtomic() error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Makefile")

	if err := WriteAtomic(path, []byte("x")); err != nil {
		t.Fatalf("WriteAtomic() error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "Makefile" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want [Makefile]", names)
	}
}

func TestWriteAtomic_FailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	// A regular file where a directory is expected makes MkdirAll fail.
	blocker := filepath.Join(dir, "blocker")
	os.WriteFile(blocker, []byte("x"), 0o644)

	err := WriteAtomic(filepath.Join(blocker, "Makefile"), []byte("x"))
	if err == nil {
		t.Fatal("expected error writing below a regular file")
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error type = %T, want *IOError", err)
	}
	if ioErr.Op != "mkdir" {
		t.Errorf("Op = %q, want %q", ioErr.Op, "mkdir")
	}
}

func TestWriteAtomic_RenameOntoDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Makefile")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	// Keep the directory non-empty so rename cannot replace it.
	os.WriteFile(filepath.Join(target, "keep"), []byte("x"), 0o644)

	err := WriteAtomic(target, []byte("x"))
	if err == nil {
		t.Fatal("expected error renaming onto a directory")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != "Makefile" {
			t.Errorf("leftover file after failed write: %s", e.Name())
		}
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error type = %T, want *IOError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}
