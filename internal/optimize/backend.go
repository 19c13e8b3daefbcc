package optimize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acm19/imgopt/internal/logger"
)

// ErrUnavailable marks a backend that cannot serve a job at all, as opposed
// to one that tried and failed.
var ErrUnavailable = errors.New("backend unavailable")

// Job describes one encode: read Src, write Dst in Format using Settings.
type Job struct {
	Src      string
	Dst      string
	Format   Format
	Settings Settings
}

// Backend produces an output artifact for a Job.
type Backend interface {
	// Name identifies the backend in logs and reports.
	Name() string
	// Encode writes job.Dst. Errors wrapping ErrUnavailable mean the backend
	// was not attempted.
	Encode(ctx context.Context, job Job) error
}

// Outcome is the result of one backend attempt.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeUnavailable
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Attempt records what a single backend did with a job.
type Attempt struct {
	Backend string
	Outcome Outcome
	Err     error
}

// Result is the outcome of running a job through an ordered backend chain.
type Result struct {
	// Backend is the name of the backend that produced the output, empty if none did.
	Backend string
	// Attempts lists every backend tried, in order.
	Attempts []Attempt
	// Err is set when no backend succeeded.
	Err error
}

// OK reports whether some backend produced the output.
func (r Result) OK() bool {
	return r.Err == nil && r.Backend != ""
}

// Tried reports whether the named backend was attempted.
func (r Result) Tried(name string) bool {
	for _, a := range r.Attempts {
		if a.Backend == name && a.Outcome != OutcomeUnavailable {
			return true
		}
	}
	return false
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeFailed
	}
}

// EnsureDir creates dir and its parents if absent. created is false when it
// already existed.
func EnsureDir(dir string) (created bool, err error) {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	logger.Debug("Created directory", "path", dir)
	return true, nil
}

// outputMode is the permission of every artifact, readable by the web server.
const outputMode = 0644

// writeAtomic reserves a temp file next to dst, lets produce fill it, then
// renames it onto dst. The temp file is removed on any failure, so dst only
// ever appears complete.
func writeAtomic(dst string, produce func(tmpPath string) error) error {
	dir := filepath.Dir(dst)
	if _, err := EnsureDir(dir); err != nil {
		return err
	}

	base := filepath.Base(dst)
	ext := filepath.Ext(base)
	pattern := "." + strings.TrimSuffix(base, ext) + ".tmp-*" + ext
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", dst, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := produce(tmpPath); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, outputMode); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", dst, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	committed = true
	return nil
}
