package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// Desktop captures the local screen. It backs the locator when the target
// runs outside a controlled browser (native dialogs, system chrome).
type Desktop struct{}

func (Desktop) Capture(_ context.Context, region *image.Rectangle) (*image.RGBA, error) {
	if region != nil {
		if region.Empty() {
			return nil, fmt.Errorf("capture: empty selection %v", *region)
		}
		img, err := screenshot.CaptureRect(*region)
		if err != nil {
			return nil, fmt.Errorf("capture: rect %v: %w", *region, err)
		}
		return img, nil
	}
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return nil, fmt.Errorf("capture: screen: %w", err)
	}
	return img, nil
}

func (Desktop) ViewportSize(context.Context) (int, int, error) {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return 0, 0, fmt.Errorf("capture: screen rect: %w", err)
	}
	return r.Dx(), r.Dy(), nil
}
