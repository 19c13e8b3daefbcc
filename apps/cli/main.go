package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/barasher/go-exiftool"
	"github.com/spf13/cobra"

	"github.com/acm19/imgopt/apps/cli/completion"
	"github.com/acm19/imgopt/internal/config"
	"github.com/acm19/imgopt/internal/logger"
	"github.com/acm19/imgopt/internal/optimize"
	"github.com/acm19/imgopt/internal/publish"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "imgopt",
	Short: "Optimize the images of a static site",
	Long: `imgopt scans an asset directory (./public by default) for JPEG, PNG and WebP
images and writes optimized copies into a mirrored output directory
(./public/optimized by default), adding a WebP sibling for every JPEG and PNG.

Each image goes through the native codec first, then ImageMagick, and is
copied unchanged as a last resort.`,
	Version:           version,
	Args:              cobra.NoArgs,
	PersistentPreRunE: loadConfig,
	Run:               runOptimize,
}

var publishCmd = &cobra.Command{
	Use:   "publish BUCKET",
	Short: "Upload the optimized images to S3",
	Long:  `Uploads every file under the output directory to S3, skipping objects whose content is unchanged (MD5 hash comparison).`,
	Args:  cobra.ExactArgs(1),
	Run:   runPublish,
}

// cfg is built once in loadConfig and read by the commands.
var cfg config.Config

var (
	rootFlag         string
	outputDirFlag    string
	workersFlag      int
	jpegQualityFlag  int
	webpQualityFlag  int
	noNativeFlag     bool
	magickFlag       string
	auditFlag        bool
	debugFlag        bool
	prefixFlag       string
	maxConcurrent    int
	cacheControlFlag string
)

func init() {
	defaults := config.Default()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlag, "root", defaults.Root, "Asset directory to scan")
	flags.StringVar(&outputDirFlag, "output-dir", defaults.OutputDir, "Name of the output subdirectory under the root")
	flags.BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.Flags().IntVarP(&workersFlag, "workers", "w", defaults.Workers, "Number of files processed at once")
	rootCmd.Flags().IntVar(&jpegQualityFlag, "jpeg-quality", defaults.JPEGQuality, "JPEG quality (1-100)")
	rootCmd.Flags().IntVar(&webpQualityFlag, "webp-quality", defaults.WebPQuality, "WebP quality (1-100)")
	rootCmd.Flags().BoolVar(&noNativeFlag, "no-native", false, "Skip the native codec and start with ImageMagick")
	rootCmd.Flags().StringVar(&magickFlag, "magick", defaults.MagickBinary, "ImageMagick executable")
	rootCmd.Flags().BoolVar(&auditFlag, "audit", defaults.Audit, "Warn about outputs that still carry GPS metadata (needs exiftool)")

	publishCmd.Flags().StringVar(&prefixFlag, "prefix", "", "Key prefix inside the bucket")
	publishCmd.Flags().IntVarP(&maxConcurrent, "max-concurrent", "c", 5, "Maximum concurrent uploads")
	publishCmd.Flags().StringVar(&cacheControlFlag, "cache-control", defaults.CacheControl, "Cache-Control header for uploaded objects")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(completion.NewInstallCmd(rootCmd))
	rootCmd.AddCommand(completion.NewUninstallCmd(rootCmd.Name()))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds cfg from .env, the environment and the flags the user set.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	loaded, err := config.Load(os.LookupEnv)
	if err != nil {
		return err
	}
	applyFlags(cmd, &loaded)

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = loaded
	logger.Setup(os.Stdout, cfg.Debug)
	return nil
}

// applyFlags overrides c with every flag explicitly set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("root") {
		c.Root = rootFlag
	}
	if changed("output-dir") {
		c.OutputDir = outputDirFlag
	}
	if changed("debug") {
		c.Debug = debugFlag
	}
	if changed("workers") {
		c.Workers = workersFlag
	}
	if changed("jpeg-quality") {
		c.JPEGQuality = jpegQualityFlag
	}
	if changed("webp-quality") {
		c.WebPQuality = webpQualityFlag
	}
	if changed("no-native") {
		c.DisableNative = noNativeFlag
	}
	if changed("magick") {
		c.MagickBinary = magickFlag
	}
	if changed("audit") {
		c.Audit = auditFlag
	}
	if changed("cache-control") {
		c.CacheControl = cacheControlFlag
	}
}

func runOptimize(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := optimizeRun(ctx, cfg, cmd.OutOrStdout()); err != nil {
		if errors.Is(err, optimize.ErrRootNotFound) {
			logger.Error("Public directory not found", "root", cfg.Root, "error", err)
		} else {
			logger.Error("Optimization failed", "error", err)
		}
		os.Exit(1)
	}
}

// optimizeRun performs one optimization run and writes the summary to out.
func optimizeRun(ctx context.Context, c config.Config, out io.Writer) error {
	var auditor optimize.MetadataAuditor
	if c.Audit {
		et, err := exiftool.NewExiftool()
		if err != nil {
			logger.Warn("exiftool unavailable, skipping metadata audit", "error", err)
		} else {
			defer et.Close()
			auditor = optimize.NewExifAuditor(et)
		}
	}

	orchestrator := optimize.NewOrchestrator(
		optimize.Options{OutputDir: c.OutputDir, Workers: c.Workers},
		optimize.NewComponents(c, auditor),
	)

	logger.Info("Starting image optimization", "root", c.Root, "output_dir", c.OutputDir)
	report, err := orchestrator.Run(ctx, c.Root)
	if err != nil {
		if report != nil {
			if werr := report.WriteSummary(out); werr != nil {
				return errors.Join(err, werr)
			}
		}
		return err
	}
	if report.Files() == 0 {
		return nil
	}
	if err := report.WriteSummary(out); err != nil {
		return err
	}

	logger.Info("Optimized images saved", "path", report.OutputRoot)
	return nil
}

func runPublish(cmd *cobra.Command, args []string) {
	bucket := args[0]

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		logger.Error("Invalid root directory", "root", cfg.Root, "error", err)
		os.Exit(1)
	}
	dir := cfg.OutputRoot(root)

	if info, err := os.Stat(dir); err != nil {
		logger.Error("Output directory does not exist, run imgopt first", "directory", dir, "error", err)
		os.Exit(1)
	} else if !info.IsDir() {
		logger.Error("Output path is not a directory", "path", dir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := publish.NewS3Publisher(ctx, publish.Options{
		CacheControl:  cfg.CacheControl,
		MaxConcurrent: maxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to initialise publisher", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting publish", "source", dir, "bucket", bucket, "prefix", prefixFlag, "max_concurrent", maxConcurrent)
	stats, err := publisher.Publish(ctx, dir, bucket, prefixFlag)
	if err != nil {
		logger.Error("Publish failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Publish completed successfully", "uploaded", stats.Uploaded, "skipped", stats.Skipped)
}
