package optimize

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xwebp "golang.org/x/image/webp"

	"github.com/acm19/imgopt/internal/logger"
)

// nativeBackend re-encodes images in-process.
type nativeBackend struct {
	disabled bool
}

// NewNativeBackend creates the in-process codec backend. A disabled backend
// reports every job as unavailable.
func NewNativeBackend(disabled bool) Backend {
	return &nativeBackend{disabled: disabled}
}

func (b *nativeBackend) Name() string { return "native" }

// Encode decodes job.Src and re-encodes it as job.Format
func (b *nativeBackend) Encode(ctx context.Context, job Job) error {
	if b.disabled {
		return fmt.Errorf("%w: native codec disabled", ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	format := job.Format
	if format == FormatOther {
		f, err := imaging.FormatFromFilename(job.Dst)
		if err != nil {
			return fmt.Errorf("%w: no native encoder for %s", ErrUnavailable, Ext(job.Dst))
		}
		logger.Debug("Passing through re-encode", "file", job.Src, "format", f.String())
	}

	img, err := decodeImage(job.Src)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", job.Src, err)
	}

	return writeAtomic(job.Dst, func(tmpPath string) error {
		out, err := os.Create(tmpPath)
		if err != nil {
			return err
		}
		defer out.Close()

		if err := encodeImage(out, img, job.Dst, format, job.Settings); err != nil {
			return fmt.Errorf("failed to encode %s: %w", job.Dst, err)
		}
		return out.Close()
	})
}

// decodeImage opens path, applying EXIF orientation for formats imaging
// understands. WebP is decoded separately since imaging has no WebP support.
func decodeImage(path string) (image.Image, error) {
	if FormatOf(path) == FormatWebP {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return xwebp.Decode(file)
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}

func encodeImage(w io.Writer, img image.Image, dst string, format Format, s Settings) error {
	switch format {
	case FormatJPEG:
		// The Go encoder writes baseline JPEG only; Progressive is left to the
		// external tool.
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(s.Quality))
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(s.CompressionLevel)))
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(s.Quality)})
	default:
		f, err := imaging.FormatFromFilename(dst)
		if err != nil {
			return err
		}
		return imaging.Encode(w, img, f)
	}
}

// pngLevel maps a zlib 0-9 level onto the presets image/png offers.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level >= 7:
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}
