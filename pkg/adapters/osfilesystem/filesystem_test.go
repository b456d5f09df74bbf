package osfilesystem

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystem_WriteAndReadFile(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "a", "b", "config.yaml")

	if err := fs.WriteFile(path, []byte("mode: capture\n")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "mode: capture\n" {
		t.Errorf("got %q", data)
	}
}

func TestFileSystem_OpenSeeks(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	if _, err := f.Seek(6, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	rest, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "6789" {
		t.Errorf("read %q after seek, want %q", rest, "6789")
	}

	if _, err := fs.Open(filepath.Join(t.TempDir(), "missing.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

func TestFileSystem_CreateAppearsOnClose(t *testing.T) {
	fs := New()
	dir := filepath.Join(t.TempDir(), "captures")
	path := filepath.Join(dir, "out.mp4")

	w, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("ftyp")); err != nil {
		t.Fatal(err)
	}
	if exists, _ := fs.Exists(path); exists {
		t.Error("output should not exist before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("write after close err = %v", err)
	}

	data, err := fs.ReadFile(path)
	if err != nil || string(data) != "ftyp" {
		t.Errorf("output = %q, %v", data, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the output", len(entries))
	}
}

func TestFileSystem_MkdirAllAndExists(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := fs.MkdirAll(path); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	exists, err := fs.Exists(path)
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
	exists, err = fs.Exists(filepath.Join(path, "nope"))
	if err != nil || exists {
		t.Errorf("Exists(missing) = %v, %v", exists, err)
	}
}

func TestFileSystem_Remove(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "test.txt")
	if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if exists, _ := fs.Exists(path); exists {
		t.Error("expected file to be removed")
	}
}
