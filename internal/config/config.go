// Package config builds the single, immutable run configuration for imgopt.
//
// Values come from the environment (optionally seeded from a .env file) and
// are then overridden by command-line flags in apps/cli. Components receive
// the Config value they need; nothing downstream reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvRoot           = "IMGOPT_ROOT"
	EnvOutputDir      = "IMGOPT_OUTPUT_DIR"
	EnvWorkers        = "IMGOPT_WORKERS"
	EnvJPEGQuality    = "IMGOPT_JPEG_QUALITY"
	EnvPNGQuality     = "IMGOPT_PNG_QUALITY"
	EnvPNGCompression = "IMGOPT_PNG_COMPRESSION"
	EnvWebPQuality    = "IMGOPT_WEBP_QUALITY"
	EnvDisableNative  = "IMGOPT_DISABLE_NATIVE"
	EnvMagick         = "IMGOPT_MAGICK"
	EnvToolTimeout    = "IMGOPT_TOOL_TIMEOUT"
	EnvAudit          = "IMGOPT_AUDIT"
	EnvCacheControl   = "IMGOPT_CACHE_CONTROL"
	EnvDebug          = "DEBUG"
)

// Config holds every tunable of a run.
type Config struct {
	// Root is the asset directory to scan.
	Root string
	// OutputDir is the name of the output subdirectory under Root. It is
	// excluded from scans.
	OutputDir string
	// Workers is the number of files processed at once. 1 is sequential.
	Workers int

	// JPEGQuality is used by both codec tiers for JPEG output.
	JPEGQuality int
	// PNGQuality is only meaningful to the external tool; Go's PNG encoder is lossless.
	PNGQuality int
	// PNGCompression is the zlib level 0-9 for the native PNG encoder.
	PNGCompression int
	// WebPQuality is used for .webp inputs and for WebP siblings.
	WebPQuality int

	// DisableNative makes the native tier report itself unavailable.
	DisableNative bool
	// MagickBinary is the ImageMagick executable looked up on PATH.
	MagickBinary string
	// ToolTimeout bounds a single external tool invocation. 0 means no limit.
	ToolTimeout time.Duration

	// Audit enables the post-run GPS metadata audit.
	Audit bool
	// CacheControl is set on objects uploaded by publish.
	CacheControl string

	Debug bool
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Root:           "public",
		OutputDir:      "optimized",
		Workers:        1,
		JPEGQuality:    85,
		PNGQuality:     80,
		PNGCompression: 8,
		WebPQuality:    80,
		MagickBinary:   "magick",
		ToolTimeout:    2 * time.Minute,
		Audit:          true,
		CacheControl:   "public, max-age=31536000, immutable",
	}
}

// LoadDotEnv loads path into the process environment if it exists. Variables
// already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from Default and the variables visible through lookup.
func Load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
			return
		}
		*dst = b
	}

	str(EnvRoot, &cfg.Root)
	str(EnvOutputDir, &cfg.OutputDir)
	num(EnvWorkers, &cfg.Workers)
	num(EnvJPEGQuality, &cfg.JPEGQuality)
	num(EnvPNGQuality, &cfg.PNGQuality)
	num(EnvPNGCompression, &cfg.PNGCompression)
	num(EnvWebPQuality, &cfg.WebPQuality)
	flag(EnvDisableNative, &cfg.DisableNative)
	str(EnvMagick, &cfg.MagickBinary)
	flag(EnvAudit, &cfg.Audit)
	str(EnvCacheControl, &cfg.CacheControl)

	if v, ok := lookup(EnvToolTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q: %w", EnvToolTimeout, v, err))
		} else {
			cfg.ToolTimeout = d
		}
	}

	// Any non-empty DEBUG enables debug logging.
	if v, ok := lookup(EnvDebug); ok && v != "" {
		cfg.Debug = true
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error

	if c.Root == "" {
		errs = append(errs, errors.New("root directory must not be empty"))
	}
	if c.OutputDir == "" || c.OutputDir == "." || c.OutputDir == ".." ||
		strings.ContainsAny(c.OutputDir, `/\`) || filepath.Base(c.OutputDir) != c.OutputDir {
		errs = append(errs, fmt.Errorf("output dir must be a single directory name, got %q", c.OutputDir))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	for _, q := range []struct {
		name  string
		value int
	}{
		{"jpeg quality", c.JPEGQuality},
		{"png quality", c.PNGQuality},
		{"webp quality", c.WebPQuality},
	} {
		if q.value < 1 || q.value > 100 {
			errs = append(errs, fmt.Errorf("%s must be within 1-100, got %d", q.name, q.value))
		}
	}
	if c.PNGCompression < 0 || c.PNGCompression > 9 {
		errs = append(errs, fmt.Errorf("png compression must be within 0-9, got %d", c.PNGCompression))
	}
	if c.MagickBinary == "" {
		errs = append(errs, errors.New("magick binary must not be empty"))
	}
	if c.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("tool timeout must not be negative, got %s", c.ToolTimeout))
	}

	return errors.Join(errs...)
}

// OutputRoot returns the absolute output directory for root.
func (c Config) OutputRoot(root string) string {
	return filepath.Join(root, c.OutputDir)
}
