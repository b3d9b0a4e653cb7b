// Package bench measures the images built from a Dockerfile before and after
// optimization.
package bench

import (
	"context"
	"fmt"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"
)

// Result holds the metrics of one image build. A failed build carries the
// failure in Error and zero metrics.
type Result struct {
	ImageTag      string        `json:"image_tag"`
	ImageSize     uint64        `json:"image_size_bytes"`
	LayerCount    int           `json:"layer_count"`
	BuildDuration time.Duration `json:"build_duration_ns"`
	Error         string        `json:"error,omitempty"`
}

// OK reports whether the build succeeded.
func (r Result) OK() bool {
	return r.Error == ""
}

// SizeMB returns the image size in mebibytes.
func (r Result) SizeMB() float64 {
	return float64(r.ImageSize) / (1024 * 1024)
}

// Builder builds an image from Dockerfile content and measures it.
type Builder interface {
	Build(ctx context.Context, dockerfile []byte, tag string) Result
}

// Comparison contrasts the original and the optimized build. Deltas are
// optimized minus original and only set when both builds succeeded.
type Comparison struct {
	Original      Result        `json:"original"`
	Optimized     Result        `json:"optimized"`
	SizeDelta     int64         `json:"size_delta_bytes"`
	LayerDelta    int           `json:"layer_delta"`
	DurationDelta time.Duration `json:"duration_delta_ns"`
}

// OK reports whether both builds succeeded.
func (c Comparison) OK() bool {
	return c.Original.OK() && c.Optimized.OK()
}

// SizeReduction returns the relative size saving in percent.
func (c Comparison) SizeReduction() float64 {
	if !c.OK() || c.Original.ImageSize == 0 {
		return 0
	}
	return -float64(c.SizeDelta) * 100 / float64(c.Original.ImageSize)
}

// Compare builds both Dockerfiles concurrently and computes the deltas.
func Compare(ctx context.Context, b Builder, original, optimized []byte, tagPrefix string) Comparison {
	if tagPrefix == "" {
		tagPrefix = fmt.Sprintf("dlin-bench-%d", time.Now().UnixNano())
	}

	var c Comparison
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Original = b.Build(gctx, original, tagPrefix+"-original")
		return nil
	})
	g.Go(func() error {
		c.Optimized = b.Build(gctx, optimized, tagPrefix+"-optimized")
		return nil
	})
	_ = g.Wait()

	if !c.OK() {
		return c
	}

	orig, err := safecast.Conv[int64](c.Original.ImageSize)
	if err != nil {
		c.Original.Error = fmt.Sprintf("image size out of range: %v", err)
		return c
	}
	opt, err := safecast.Conv[int64](c.Optimized.ImageSize)
	if err != nil {
		c.Optimized.Error = fmt.Sprintf("image size out of range: %v", err)
		return c
	}
	c.SizeDelta = opt - orig
	c.LayerDelta = c.Optimized.LayerCount - c.Original.LayerCount
	c.DurationDelta = c.Optimized.BuildDuration - c.Original.BuildDuration
	return c
}
