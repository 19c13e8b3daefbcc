package optimize

import (
	"context"
	"errors"
	"fmt"

	"github.com/acm19/imgopt/internal/logger"
)

// CodecSelector produces an optimized copy of one image.
type CodecSelector interface {
	// Optimize writes an optimized version of src to dst.
	Optimize(ctx context.Context, src, dst string) Result
}

// chain tries backends in order until one succeeds.
type chain struct {
	profile  Profile
	backends []Backend
}

// NewSelector creates a CodecSelector trying backends in the given order.
func NewSelector(profile Profile, backends ...Backend) CodecSelector {
	return &chain{profile: profile, backends: backends}
}

// Optimize encodes src in its own format
func (c *chain) Optimize(ctx context.Context, src, dst string) Result {
	format := FormatOf(src)
	return c.run(ctx, Job{
		Src:      src,
		Dst:      dst,
		Format:   format,
		Settings: c.profile.For(format),
	})
}

func (c *chain) run(ctx context.Context, job Job) Result {
	var res Result
	var errs []error

	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		err := b.Encode(ctx, job)
		outcome := classify(err)
		res.Attempts = append(res.Attempts, Attempt{Backend: b.Name(), Outcome: outcome, Err: err})

		switch outcome {
		case OutcomeSucceeded:
			res.Backend = b.Name()
			return res
		case OutcomeUnavailable:
			logger.Debug("Backend unavailable", "backend", b.Name(), "file", job.Src, "reason", err)
		default:
			logger.Debug("Backend failed", "backend", b.Name(), "file", job.Src, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}

	if len(errs) == 0 {
		res.Err = fmt.Errorf("%w: no backend could encode %s", ErrUnavailable, job.Src)
	} else {
		res.Err = errors.Join(errs...)
	}
	return res
}
