package optimize

import (
	"path/filepath"
	"slices"
	"strings"
)

var (
	supportedExts  = []string{".jpg", ".jpeg", ".png", ".webp"}
	webpSourceExts = []string{".jpg", ".jpeg", ".png"}
)

// Ext returns the lowercase extension of filePath.
func Ext(filePath string) string {
	return strings.ToLower(filepath.Ext(filePath))
}

// IsSupported reports whether filePath has an extension the optimizer handles.
func IsSupported(filePath string) bool {
	return slices.Contains(supportedExts, Ext(filePath))
}

// WantsWebP reports whether a WebP sibling should be generated for filePath.
// WebP inputs never are.
func WantsWebP(filePath string) bool {
	return slices.Contains(webpSourceExts, Ext(filePath))
}

// FormatOf classifies filePath by extension.
func FormatOf(filePath string) Format {
	switch Ext(filePath) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".webp":
		return FormatWebP
	default:
		return FormatOther
	}
}

// WebPPath replaces the extension of path with .webp.
func WebPPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".webp"
}
