package capture

import (
	"context"
	"image"
)

// Provider supplies fresh haystack frames for the locator. Capture returns a
// frame covering at least the requested region, or the full surface when
// region is nil. Each call performs a real capture; providers never serve
// cached frames, so a polling loop is staleness-free at the cost of one
// capture per iteration.
type Provider interface {
	Capture(ctx context.Context, region *image.Rectangle) (*image.RGBA, error)
	ViewportSize(ctx context.Context) (width, height int, err error)
}
