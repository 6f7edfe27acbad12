package obslog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotatingFile_WritesWithoutRotatingBelowMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iothub-authd.log")

	rf, err := NewRotatingFile(path, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	if _, err := rf.Write([]byte("line one\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Errorf("expected no backup file before crossing maxSize, stat err: %v", err)
	}
}

func TestRotatingFile_RotatesPastMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iothub-authd.log")

	rf, err := NewRotatingFile(path, 16, 2)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	if _, err := rf.Write([]byte("0123456789abcdef")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := rf.Write([]byte("rotate-me")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected a .1 backup after crossing maxSize, stat err: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current log: %v", err)
	}
	if string(data) != "rotate-me" {
		t.Errorf("expected current log to contain only the post-rotation write, got %q", data)
	}
}

func TestRotatingFile_KeepsAtMostMaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iothub-authd.log")

	rf, err := NewRotatingFile(path, 8, 2)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	for i := 0; i < 5; i++ {
		if _, err := rf.Write([]byte("123456789")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no .3 backup with maxBackups=2, stat err: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("expected a .2 backup, stat err: %v", err)
	}
}

func TestRotatingFile_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iothub-authd.log")

	rf, err := NewRotatingFile(path, 1024, 1)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}

	if err := rf.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := rf.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got: %v", err)
	}
}
