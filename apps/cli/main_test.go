package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acm19/imgopt/internal/config"
	"github.com/acm19/imgopt/internal/optimize"
)

func testConfig(root string) config.Config {
	c := config.Default()
	c.Root = root
	c.MagickBinary = "imgopt-test-no-such-magick"
	c.Audit = false
	return c
}

func TestApplyFlags(t *testing.T) {
	if err := rootCmd.ParseFlags([]string{"--root", "site", "--workers", "4", "--no-native", "--magick", "/opt/magick"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	c := config.Default()
	c.JPEGQuality = 55
	applyFlags(rootCmd, &c)

	if c.Root != "site" || c.Workers != 4 || !c.DisableNative || c.MagickBinary != "/opt/magick" {
		t.Errorf("Flags not applied: %+v", c)
	}
	if c.JPEGQuality != 55 {
		t.Errorf("JPEGQuality = %d, unset flags must not override config", c.JPEGQuality)
	}
	if c.OutputDir != config.Default().OutputDir {
		t.Errorf("OutputDir = %q, want default", c.OutputDir)
	}
}

func TestOptimizeRun_NoImages(t *testing.T) {
	root := filepath.Join(t.TempDir(), "public")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("Failed to create root: %v", err)
	}

	var out bytes.Buffer
	if err := optimizeRun(context.Background(), testConfig(root), &out); err != nil {
		t.Fatalf("optimizeRun() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("No summary expected without images, got:\n%s", out.String())
	}
}

func TestOptimizeRun_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "public")

	var out bytes.Buffer
	err := optimizeRun(context.Background(), testConfig(root), &out)
	if !errors.Is(err, optimize.ErrRootNotFound) {
		t.Fatalf("optimizeRun() error = %v, want ErrRootNotFound", err)
	}
	if _, statErr := os.Stat(root); !os.IsNotExist(statErr) {
		t.Error("optimizeRun() must not create the missing root")
	}
}

func TestOptimizeRun_WritesSummary(t *testing.T) {
	root := filepath.Join(t.TempDir(), "public")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("Failed to create root: %v", err)
	}
	f, err := os.Create(filepath.Join(root, "logo.png"))
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("Failed to encode image: %v", err)
	}
	f.Close()

	var out bytes.Buffer
	if err := optimizeRun(context.Background(), testConfig(root), &out); err != nil {
		t.Fatalf("optimizeRun() error = %v", err)
	}

	for _, want := range []string{"OPTIMIZATION SUMMARY", "Files processed: 1", "WebP files generated: 1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Summary missing %q:\n%s", want, out.String())
		}
	}
	if _, err := os.Stat(filepath.Join(root, "optimized", "logo.webp")); err != nil {
		t.Errorf("WebP sibling missing: %v", err)
	}
}

type failingWriter struct{}

var errWrite = errors.New("disk full")

func (failingWriter) Write(p []byte) (int, error) { return 0, errWrite }

func TestOptimizeRun_InterruptedSummaryError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "public")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("Failed to create root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.png"), []byte("img"), 0644); err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := optimizeRun(ctx, testConfig(root), failingWriter{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("optimizeRun() error = %v, want context.Canceled", err)
	}
	if !errors.Is(err, errWrite) {
		t.Errorf("optimizeRun() error = %v, want the summary write error", err)
	}
}
