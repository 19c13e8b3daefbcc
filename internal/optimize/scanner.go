package optimize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/acm19/imgopt/internal/logger"
)

// ErrRootNotFound is returned when the directory to scan is missing or is not
// a directory. It is fatal to a run.
var ErrRootNotFound = errors.New("root directory not found")

// Scanner discovers candidate images under a root directory.
type Scanner interface {
	// Scan returns supported images under root in depth-first, lexical order.
	Scan(root string) ([]CandidateFile, error)
}

// fileScanner implements the Scanner interface
type fileScanner struct {
	outputDir string
}

// NewScanner creates a Scanner that skips every directory named outputDir.
func NewScanner(outputDir string) Scanner {
	return &fileScanner{outputDir: outputDir}
}

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}
	return nil
}

// Scan walks root and collects supported images
func (s *fileScanner) Scan(root string) ([]CandidateFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := ValidateRoot(root); err != nil {
		return nil, err
	}
	// WalkDir does not descend into a symlinked root.
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	root = resolved

	var files []CandidateFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if name == s.outputDir {
				logger.Debug("Skipping output directory", "path", path)
				return filepath.SkipDir
			}
			return nil
		}

		if !IsSupported(name) {
			return nil
		}

		info, err := fileInfo(path, d)
		if err != nil {
			logger.Warn("Skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		logger.Debug("Discovered file", "path", path, "size", info.Size())
		files = append(files, CandidateFile{
			Path: path,
			Rel:  rel,
			Ext:  Ext(name),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

// fileInfo stats d, following it when it is a symlink. Symlinked
// directories are not descended into.
func fileInfo(path string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		return os.Stat(path)
	}
	return d.Info()
}
