package osfilesystem

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestFileSystem_WriteAndRead(t *testing.T) {
	osfs := New()
	path := filepath.Join(t.TempDir(), "a", "b", "frame.png")

	if err := osfs.WriteFile(path, []byte("pixels")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := osfs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("expected %q, got %q", "pixels", data)
	}
}

func TestFileSystem_Create(t *testing.T) {
	osfs := New()
	path := filepath.Join(t.TempDir(), "dump", "range.rgb")

	w, err := osfs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, chunk := range []string{"abc", "def"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := osfs.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != 6 || info.Dir {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestFileSystem_StatMissing(t *testing.T) {
	_, err := New().Stat(filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestFileSystem_MkdirAllAndRemove(t *testing.T) {
	osfs := New()
	dir := filepath.Join(t.TempDir(), "out")

	if err := osfs.MkdirAll(dir); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if info, err := osfs.Stat(dir); err != nil || !info.Dir {
		t.Fatalf("expected directory, got %+v, %v", info, err)
	}
	if err := osfs.Remove(dir); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := osfs.Stat(dir); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("directory should be gone, got %v", err)
	}
}
