package optimize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/acm19/imgopt/internal/config"
	"github.com/acm19/imgopt/internal/logger"
)

// Options controls a run.
type Options struct {
	// OutputDir is the name of the output subdirectory under the root.
	OutputDir string
	// Workers is the number of files processed at once (1 = sequential).
	Workers int
	// ProgressChan is an optional channel for receiving progress events.
	ProgressChan chan<- ProgressEvent
}

// Components are the collaborators an Orchestrator drives.
type Components struct {
	Scanner    Scanner
	Selector   CodecSelector
	Transcoder WebPTranscoder
	// Fallback is used when Selector returns an error without having tried it.
	Fallback Backend
	// Auditor is optional; nil skips the metadata audit.
	Auditor MetadataAuditor
}

// Orchestrator drives a full optimization run.
type Orchestrator interface {
	// Run optimizes every candidate under root into its output directory.
	Run(ctx context.Context, root string) (*Report, error)
}

// orchestrator implements the Orchestrator interface
type orchestrator struct {
	opts Options
	c    Components
}

// NewOrchestrator creates an Orchestrator from explicit components.
func NewOrchestrator(opts Options, c Components) Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if c.Fallback == nil {
		c.Fallback = NewCopyBackend()
	}
	return &orchestrator{opts: opts, c: c}
}

// NewComponents wires the stock backend chain from cfg: native, then magick,
// then copy for optimization; native, then magick for WebP.
func NewComponents(cfg config.Config, auditor MetadataAuditor) Components {
	profile := NewProfile(cfg.JPEGQuality, cfg.PNGQuality, cfg.PNGCompression, cfg.WebPQuality)
	native := NewNativeBackend(cfg.DisableNative)
	magick := NewMagickBackend(cfg.MagickBinary, cfg.ToolTimeout)
	fallback := NewCopyBackend()

	return Components{
		Scanner:    NewScanner(cfg.OutputDir),
		Selector:   NewSelector(profile, native, magick, fallback),
		Transcoder: NewWebPTranscoder(profile, native, magick),
		Fallback:   fallback,
		Auditor:    auditor,
	}
}

// Run validates root, scans it and processes every candidate
func (o *orchestrator) Run(ctx context.Context, root string) (*Report, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := ValidateRoot(root); err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	outputRoot := filepath.Join(root, o.opts.OutputDir)
	created, err := EnsureDir(outputRoot)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("Created directory", "path", outputRoot)
	}

	files, err := o.c.Scanner.Scan(root)
	if err != nil {
		return nil, err
	}

	report := newReport(root, outputRoot, len(files))
	if len(files) == 0 {
		logger.Info("No images found to optimize", "root", root)
		return report, nil
	}
	logger.Info("Found images to optimize", "count", len(files), "workers", o.opts.Workers)

	sem := semaphore.NewWeighted(int64(o.opts.Workers))
	var wg sync.WaitGroup
	var processed atomic.Int64
	total := len(files)

	var runErr error
	for i, file := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}

		wg.Add(1)
		go func(i int, file CandidateFile) {
			defer wg.Done()
			defer sem.Release(1)

			report.set(i, o.processFile(ctx, file, outputRoot, total))

			n := int(processed.Add(1))
			logger.Info("Progress", "done", n, "total", total)
			o.emit(ProgressEvent{Stage: "done", Current: n, Total: total, File: file.Rel})
		}(i, file)
	}
	wg.Wait()

	if runErr == nil {
		runErr = ctx.Err()
	}
	report.finalize()
	if runErr != nil {
		return report, fmt.Errorf("optimization interrupted: %w", runErr)
	}

	if o.c.Auditor != nil {
		o.audit(report)
	}

	logger.Info("Optimization completed", "output", outputRoot)
	return report, nil
}

// processFile runs optimize then WebP for one file. It never fails the run;
// every error ends up in the returned FileReport.
func (o *orchestrator) processFile(ctx context.Context, file CandidateFile, outputRoot string, total int) FileReport {
	dst := filepath.Join(outputRoot, file.Rel)
	entry := FileReport{
		Rel:          file.Rel,
		OutputPath:   dst,
		OriginalSize: file.Size,
	}
	if size, err := FileSize(file.Path); err == nil {
		entry.OriginalSize = size
	}

	logger.Info("Optimizing", "file", file.Rel)
	o.emit(ProgressEvent{Stage: "optimizing", Total: total, File: file.Rel})

	res := o.c.Selector.Optimize(ctx, file.Path, dst)
	entry.Backend = res.Backend
	entry.Attempts = res.Attempts
	for _, a := range res.Attempts {
		if a.Outcome == OutcomeFailed {
			logger.Warn("Backend failed, falling back", "file", file.Rel, "backend", a.Backend, "error", a.Err)
		}
	}

	if res.Err != nil {
		entry.Err = res.Err
		logger.Error("Error optimizing file", "file", file.Rel, "error", res.Err)
		if ctx.Err() == nil && !res.Tried(o.c.Fallback.Name()) {
			logger.Info("Fallback: copying original file", "file", file.Rel)
			err := o.c.Fallback.Encode(ctx, Job{Src: file.Path, Dst: dst, Format: FormatOf(file.Path)})
			if err == nil {
				entry.Backend = o.c.Fallback.Name()
			} else {
				entry.Err = errors.Join(entry.Err, err)
				logger.Error("Fallback copy failed", "file", file.Rel, "error", err)
			}
		}
	}

	if size, err := FileSize(dst); err == nil {
		entry.OutputExists = true
		entry.OptimizedSize = size
		logger.Info("Optimized",
			"file", file.Rel,
			"original", FormatBytes(entry.OriginalSize),
			"optimized", FormatBytes(size),
			"savings", FormatSavings(entry.OriginalSize, size),
			"backend", entry.Backend)
	}

	if WantsWebP(file.Path) && ctx.Err() == nil {
		o.emit(ProgressEvent{Stage: "webp", Total: total, File: file.Rel})
		o.transcode(ctx, file, &entry)
	}

	return entry
}

func (o *orchestrator) transcode(ctx context.Context, file CandidateFile, entry *FileReport) {
	webpPath := WebPPath(entry.OutputPath)
	res := o.c.Transcoder.Transcode(ctx, file.Path, webpPath)
	if !res.OK() {
		entry.WebPErr = res.Err
		logger.Warn("Could not generate WebP", "file", file.Rel, "error", res.Err)
		return
	}

	size, err := FileSize(webpPath)
	if err != nil {
		entry.WebPErr = err
		logger.Warn("Could not generate WebP", "file", file.Rel, "error", err)
		return
	}

	entry.WebPPath = webpPath
	entry.WebPSize = size
	entry.WebPBackend = res.Backend
	logger.Info("WebP generated",
		"file", WebPPath(file.Rel),
		"size", FormatBytes(size),
		"smaller", FormatSavings(entry.OriginalSize, size),
		"backend", res.Backend)
}

func (o *orchestrator) audit(report *Report) {
	var paths []string
	for _, e := range report.Entries {
		if e.OutputExists {
			paths = append(paths, e.OutputPath)
		}
		if e.WebPPath != "" {
			paths = append(paths, e.WebPPath)
		}
	}

	findings, err := o.c.Auditor.Audit(paths)
	if err != nil {
		logger.Warn("Metadata audit skipped", "error", err)
		return
	}
	for _, f := range findings {
		rel, err := filepath.Rel(report.OutputRoot, f.Path)
		if err != nil {
			rel = f.Path
		}
		logger.Warn("Output still carries GPS metadata", "file", rel, "tags", f.Tags)
	}
	report.Findings = findings
}

func (o *orchestrator) emit(ev ProgressEvent) {
	if o.opts.ProgressChan == nil {
		return
	}
	select {
	case o.opts.ProgressChan <- ev:
	default:
		logger.Debug("Progress event dropped (channel full)", "stage", ev.Stage)
	}
}
