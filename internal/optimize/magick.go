package optimize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/acm19/imgopt/internal/logger"
)

// waitDelay bounds how long a killed tool may keep its output pipes open.
const waitDelay = 5 * time.Second

// magickBackend shells out to ImageMagick.
type magickBackend struct {
	binary  string
	timeout time.Duration
}

// NewMagickBackend creates a backend running binary (usually "magick") with
// each invocation bounded by timeout. A zero timeout means no limit.
func NewMagickBackend(binary string, timeout time.Duration) Backend {
	return &magickBackend{binary: binary, timeout: timeout}
}

func (b *magickBackend) Name() string { return "magick" }

// Encode runs the external tool into a temp file and moves it onto job.Dst
func (b *magickBackend) Encode(ctx context.Context, job Job) error {
	path, err := exec.LookPath(b.binary)
	if err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrUnavailable, b.binary, err)
	}

	return writeAtomic(job.Dst, func(tmpPath string) error {
		runCtx := ctx
		if b.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, b.timeout)
			defer cancel()
		}

		args := MagickArgs(job.Src, tmpPath, job.Settings)
		logger.Debug("Running external tool", "binary", path, "args", strings.Join(args, " "))

		cmd := exec.CommandContext(runCtx, path, args...)
		cmd.WaitDelay = waitDelay
		output, err := cmd.CombinedOutput()
		if err != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s timed out after %s", b.binary, b.timeout)
			}
			return fmt.Errorf("%s failed for %s: %w, output: %s", b.binary, job.Src, err, strings.TrimSpace(string(output)))
		}

		info, err := os.Stat(tmpPath)
		if err != nil {
			return fmt.Errorf("%s produced no output: %w", b.binary, err)
		}
		if info.Size() == 0 {
			return fmt.Errorf("%s produced an empty file for %s", b.binary, job.Src)
		}
		return nil
	})
}

// MagickArgs builds the ImageMagick argument list for converting src into
// dst. The output format follows dst's extension.
func MagickArgs(src, dst string, s Settings) []string {
	args := []string{src}
	if s.StripMetadata {
		args = append(args, "-strip")
	}
	if s.Quality > 0 {
		args = append(args, "-quality", strconv.Itoa(s.Quality))
	}
	if s.Progressive {
		args = append(args, "-interlace", "Plane")
	}
	return append(args, dst)
}
