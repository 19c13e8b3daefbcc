package optimize

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestNativeBackend_PNG(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "in.png", pngBytes(t))
	dst := filepath.Join(tmpDir, "out", "in.png")

	job := Job{Src: src, Dst: dst, Format: FormatPNG, Settings: DefaultProfile().For(FormatPNG)}
	if err := NewNativeBackend(false).Encode(context.Background(), job); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("Output missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("Output bounds = %v, want 32x24", b)
	}
	assertNoTempFiles(t, filepath.Dir(dst))
}

func TestNativeBackend_JPEG(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "in.jpg", jpegBytes(t))
	dst := filepath.Join(tmpDir, "out", "in.jpg")

	job := Job{Src: src, Dst: dst, Format: FormatJPEG, Settings: DefaultProfile().For(FormatJPEG)}
	if err := NewNativeBackend(false).Encode(context.Background(), job); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Output missing: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("Output is not a JPEG: %v", err)
	}
}

func TestNativeBackend_WebPFromPNG(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "in.png", pngBytes(t))
	dst := filepath.Join(tmpDir, "in.webp")

	job := Job{Src: src, Dst: dst, Format: FormatWebP, Settings: DefaultProfile().For(FormatWebP)}
	if err := NewNativeBackend(false).Encode(context.Background(), job); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Output missing: %v", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		t.Errorf("Output is not a WebP container: % x", data[:min(len(data), 12)])
	}

	// Re-encoding the WebP itself exercises the WebP decoder.
	again := filepath.Join(tmpDir, "out", "in.webp")
	job = Job{Src: dst, Dst: again, Format: FormatWebP, Settings: DefaultProfile().For(FormatWebP)}
	if err := NewNativeBackend(false).Encode(context.Background(), job); err != nil {
		t.Fatalf("Encode() of WebP input error = %v", err)
	}
	assertExists(t, again)
}

func TestNativeBackend_Deterministic(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "in.png", pngBytes(t))
	backend := NewNativeBackend(false)

	var outputs [][]byte
	for _, name := range []string{"first.png", "second.png"} {
		dst := filepath.Join(tmpDir, name)
		job := Job{Src: src, Dst: dst, Format: FormatPNG, Settings: DefaultProfile().For(FormatPNG)}
		if err := backend.Encode(context.Background(), job); err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		data, err := os.ReadFile(dst)
		if err != nil {
			t.Fatalf("Output missing: %v", err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("Encoding the same input twice should give identical bytes")
	}
}

func TestNativeBackend_Disabled(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "in.png", pngBytes(t))
	dst := filepath.Join(tmpDir, "out.png")

	err := NewNativeBackend(true).Encode(context.Background(), Job{Src: src, Dst: dst, Format: FormatPNG})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Encode() error = %v, want ErrUnavailable", err)
	}
	assertNotExists(t, dst)
}

func TestNativeBackend_CorruptInput(t *testing.T) {
	tmpDir := t.TempDir()
	src := createTestFile(t, tmpDir, "broken.jpg", []byte("definitely not a jpeg"))
	outDir := filepath.Join(tmpDir, "out")
	dst := filepath.Join(outDir, "broken.jpg")

	err := NewNativeBackend(false).Encode(context.Background(), Job{Src: src, Dst: dst, Format: FormatJPEG, Settings: Settings{Quality: 85}})
	if err == nil {
		t.Fatal("Encode() should fail on corrupt input")
	}
	if classify(err) != OutcomeFailed {
		t.Errorf("classify() = %v, want failed", classify(err))
	}
	assertNotExists(t, dst)
	assertNoTempFiles(t, outDir)
}

func TestPNGLevel(t *testing.T) {
	tests := []struct {
		level    int
		expected png.CompressionLevel
	}{
		{0, png.NoCompression},
		{1, png.BestSpeed},
		{3, png.BestSpeed},
		{5, png.DefaultCompression},
		{8, png.BestCompression},
		{9, png.BestCompression},
	}

	for _, tt := range tests {
		if got := pngLevel(tt.level); got != tt.expected {
			t.Errorf("pngLevel(%d) = %v, expected %v", tt.level, got, tt.expected)
		}
	}
}
