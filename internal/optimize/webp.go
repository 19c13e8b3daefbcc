package optimize

import (
	"context"
)

// WebPTranscoder produces a WebP sibling of an image.
type WebPTranscoder interface {
	// Transcode writes a WebP encoding of src to dst.
	Transcode(ctx context.Context, src, dst string) Result
}

// webpTranscoder reuses the backend chain with WebP settings. It must not be
// given a copy backend: a copied JPEG named .webp is not a WebP.
type webpTranscoder struct {
	chain *chain
}

// NewWebPTranscoder creates a WebPTranscoder trying backends in order.
func NewWebPTranscoder(profile Profile, backends ...Backend) WebPTranscoder {
	return &webpTranscoder{chain: &chain{profile: profile, backends: backends}}
}

func (t *webpTranscoder) Transcode(ctx context.Context, src, dst string) Result {
	return t.chain.run(ctx, Job{
		Src:      src,
		Dst:      dst,
		Format:   FormatWebP,
		Settings: t.chain.profile.For(FormatWebP),
	})
}
