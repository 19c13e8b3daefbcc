// Package publish uploads an optimized asset tree to S3.
package publish

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/acm19/imgopt/internal/logger"
)

// S3Client is the subset of the S3 API used for publishing.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Stats summarises a publish run.
type Stats struct {
	Uploaded int
	Skipped  int
	Failed   int
	Bytes    int64
}

// Publisher uploads a directory tree to a bucket.
type Publisher interface {
	// Publish uploads every file under dir to bucket, keyed prefix/relative-path.
	Publish(ctx context.Context, dir, bucket, prefix string) (Stats, error)
}

// Options tunes a Publisher.
type Options struct {
	// CacheControl is set on every uploaded object when non-empty.
	CacheControl string
	// MaxConcurrent bounds parallel uploads.
	MaxConcurrent int
}

// s3Publisher implements the Publisher interface
type s3Publisher struct {
	client S3Client
	opts   Options
}

// NewS3Publisher creates a Publisher using the default AWS config chain.
func NewS3Publisher(ctx context.Context, opts Options) (Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewPublisherWithClient(s3.NewFromConfig(cfg), opts), nil
}

// NewPublisherWithClient creates a Publisher around an existing client.
func NewPublisherWithClient(client S3Client, opts Options) Publisher {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &s3Publisher{client: client, opts: opts}
}

type uploadJob struct {
	path string
	key  string
	size int64
}

type uploadResult struct {
	job     uploadJob
	skipped bool
	err     error
}

// Publish walks dir and uploads each file in parallel
func (p *s3Publisher) Publish(ctx context.Context, dir, bucket, prefix string) (Stats, error) {
	var stats Stats

	jobs, err := collectJobs(dir, prefix)
	if err != nil {
		return stats, err
	}
	if len(jobs) == 0 {
		logger.Info("No files found to publish", "directory", dir)
		return stats, nil
	}

	logger.Info("Starting publish", "files", len(jobs), "bucket", bucket, "concurrency", p.opts.MaxConcurrent)

	queue := make(chan uploadJob, len(jobs))
	results := make(chan uploadResult, len(jobs))
	var wg sync.WaitGroup

	for i := 0; i < p.opts.MaxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				skipped, err := p.publishFile(ctx, job, bucket)
				results <- uploadResult{job: job, skipped: skipped, err: err}
			}
		}()
	}

	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	wg.Wait()
	close(results)

	var errs []error
	for r := range results {
		switch {
		case r.err != nil:
			stats.Failed++
			logger.Error("Failed to publish file", "key", r.job.key, "error", r.err)
			errs = append(errs, fmt.Errorf("%s: %w", r.job.key, r.err))
		case r.skipped:
			stats.Skipped++
		default:
			stats.Uploaded++
			stats.Bytes += r.job.size
		}
	}

	if len(errs) > 0 {
		logger.Error("Publish completed with errors", "uploaded", stats.Uploaded, "skipped", stats.Skipped, "failed", stats.Failed)
		return stats, fmt.Errorf("publish failed for %d files, first error: %w", len(errs), errs[0])
	}

	logger.Info("Publish completed", "uploaded", stats.Uploaded, "skipped", stats.Skipped, "bytes", stats.Bytes)
	return stats, nil
}

// collectJobs lists regular files under dir, skipping Finder metadata and
// leftover temp files
func collectJobs(dir, prefix string) ([]uploadJob, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("publish directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("publish path is not a directory: %s", dir)
	}

	var jobs []uploadJob
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if !d.Type().IsRegular() || skipUpload(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		jobs = append(jobs, uploadJob{path: p, key: ObjectKey(prefix, rel), size: fi.Size()})
		return nil
	})
	return jobs, err
}

func skipUpload(name string) bool {
	return name == ".DS_Store" || (strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-"))
}

// ObjectKey joins prefix and a relative file path into an S3 key.
func ObjectKey(prefix, rel string) string {
	key := filepath.ToSlash(rel)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// ContentType returns the MIME type served for name.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// publishFile uploads one file unless S3 already holds identical content
func (p *s3Publisher) publishFile(ctx context.Context, job uploadJob, bucket string) (bool, error) {
	localHash, err := calculateMD5(job.path)
	if err != nil {
		return false, fmt.Errorf("failed to calculate MD5: %w", err)
	}

	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(job.key),
	})
	if err == nil {
		remoteETag := strings.Trim(aws.ToString(head.ETag), `"`)
		if remoteETag == localHash {
			logger.Debug("Object unchanged, skipping", "key", job.key, "hash", localHash)
			return true, nil
		}
		logger.Info("Replacing changed object", "key", job.key, "local", localHash, "remote", remoteETag)
	} else if !isNotFoundError(err) {
		return false, fmt.Errorf("failed to check S3 object existence: %w", err)
	}

	file, err := os.Open(job.path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(job.key),
		Body:        file,
		ContentType: aws.String(ContentType(job.path)),
	}
	if p.opts.CacheControl != "" {
		input.CacheControl = aws.String(p.opts.CacheControl)
	}

	logger.Debug("Uploading", "key", job.key, "bytes", job.size)
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return false, fmt.Errorf("failed to upload: %w", err)
	}
	return false, nil
}

// calculateMD5 calculates the MD5 hash of a file
func calculateMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// isNotFoundError checks if the error is a NotFound error
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey" {
			return true
		}
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "StatusCode: 404")
}
