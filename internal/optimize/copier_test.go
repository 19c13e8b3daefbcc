package optimize

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestCopyBackend(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "in.webp", []byte("original bytes"))
	modTime := time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, modTime, modTime); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}
	dst := filepath.Join(tmpDir, "out", "deep", "in.webp")

	if err := NewCopyBackend().Encode(context.Background(), Job{Src: src, Dst: dst, Format: FormatWebP}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	content, err := os.ReadFile(dst)
	if err != nil || string(content) != "original bytes" {
		t.Errorf("Copy content = %q, %v", content, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.ModTime().Equal(modTime) {
		t.Errorf("ModTime = %v, want %v", info.ModTime(), modTime)
	}
	assertNoTempFiles(t, filepath.Dir(dst))
}

func TestCopyBackend_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "empty.png", nil)
	dst := filepath.Join(tmpDir, "out", "empty.png")

	if err := NewCopyBackend().Encode(context.Background(), Job{Src: src, Dst: dst}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if size, err := FileSize(dst); err != nil || size != 0 {
		t.Errorf("FileSize() = %d, %v, want 0", size, err)
	}
}

func TestCopyBackend_MissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := filepath.Join(tmpDir, "out")
	dst := filepath.Join(outDir, "gone.png")

	if err := NewCopyBackend().Encode(context.Background(), Job{Src: filepath.Join(tmpDir, "gone.png"), Dst: dst}); err == nil {
		t.Fatal("Encode() should fail for a missing source")
	}
	assertNotExists(t, dst)
	assertNoTempFiles(t, outDir)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	created, err := EnsureDir(dir)
	if err != nil || !created {
		t.Fatalf("EnsureDir() = %v, %v, want created", created, err)
	}
	created, err = EnsureDir(dir)
	if err != nil || created {
		t.Errorf("Second EnsureDir() = %v, %v, want existing", created, err)
	}

	file := createTestFile(t, dir, "file", []byte("x"))
	if _, err := EnsureDir(file); err == nil {
		t.Error("EnsureDir() on a file should fail")
	}
}

func TestWriteAtomic_OutputMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "in.png", []byte("data"))
	if err := os.Chmod(src, 0600); err != nil {
		t.Fatalf("Failed to chmod source: %v", err)
	}
	dst := filepath.Join(tmpDir, "out", "in.png")

	if err := NewCopyBackend().Encode(context.Background(), Job{Src: src, Dst: dst}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0644 {
		t.Errorf("Output mode = %v, want -rw-r--r--", mode)
	}
}
