package optimize

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/acm19/imgopt/internal/logger"
)

// copyBackend writes an unchanged copy of the source.
type copyBackend struct{}

// NewCopyBackend creates the last-resort backend.
func NewCopyBackend() Backend {
	return &copyBackend{}
}

func (b *copyBackend) Name() string { return "copy" }

// Encode copies job.Src to job.Dst byte for byte, preserving its modification time
func (b *copyBackend) Encode(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(job.Dst, func(tmpPath string) error {
		return copyFilePreserveTime(job.Src, tmpPath)
	})
}

// copyFilePreserveTime copies a file and preserves its modification time
func copyFilePreserveTime(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		logger.Debug("Failed to stat source file", "file", src, "error", err)
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		logger.Debug("Failed to create destination file", "file", dst, "error", err)
		return err
	}
	defer dstFile.Close()

	bytesWritten, err := io.Copy(dstFile, srcFile)
	if err != nil {
		return err
	}
	if err := dstFile.Close(); err != nil {
		return err
	}

	logger.Debug("File copied", "from", src, "bytes", bytesWritten)
	return os.Chtimes(dst, time.Now(), srcInfo.ModTime())
}
