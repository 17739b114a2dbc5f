package vision

import (
	"context"
	"errors"
	"image"
	"runtime"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// ScaleOptions configures multi-scale matching. Factors are generated from
// MinScale..MaxScale using ScaleStep; a factor of 1.0 searches the needle at
// its native size. StopOnScore aborts remaining scales once a hit reaches it
// (0 disables early stop).
type ScaleOptions struct {
	Options
	MinScale    float64
	MaxScale    float64
	ScaleStep   float64
	StopOnScore float64
}

// ScaleResult is the best match found across scales.
type ScaleResult struct {
	Match
	Scale           float64
	Found           bool
	ScalesEvaluated int
}

const maxScaleSteps = 200

// errStopScale cancels remaining scale workers after an early-stop hit.
var errStopScale = errors.New("vision: scale search stopped early")

// MultiScaleMatch searches for the needle at several scale factors and
// returns the single best match. Browser captures are frequently rendered at
// a device pixel ratio other than 1, so a needle cropped at one DPR may
// appear rescaled in the haystack; a small scale ladder around 1.0 absorbs
// that.
func MultiScaleMatch(ctx context.Context, needle, haystack image.Image, opts ScaleOptions) (ScaleResult, error) {
	if needle == nil || haystack == nil {
		return ScaleResult{}, nil
	}
	factors := scaleFactors(opts)
	if len(factors) == 0 {
		return ScaleResult{}, nil
	}

	nd := ToRGBA(needle)

	var mu sync.Mutex
	best := ScaleResult{Match: Match{Score: -1}}
	evaluated := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, factor := range factors {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			scaled := scaleNeedle(nd, factor)
			if scaled == nil {
				return nil
			}
			m, err := Locate(scaled, haystack, opts.Options)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			evaluated++
			if m != nil && m.Score > best.Score {
				best = ScaleResult{Match: *m, Scale: factor, Found: true}
				if opts.StopOnScore > 0 && m.Score >= opts.StopOnScore {
					return errStopScale
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errStopScale) {
		return ScaleResult{}, err
	}
	best.ScalesEvaluated = evaluated
	if !best.Found {
		best.Match = Match{}
	}
	return best, nil
}

// MultiScaleLocateAll resolves the best-scoring scale via the ladder, then
// returns every occurrence of the needle at that scale. An empty result means
// no scale produced a hit.
func MultiScaleLocateAll(ctx context.Context, needle, haystack image.Image, opts ScaleOptions) ([]Match, error) {
	best, err := MultiScaleMatch(ctx, needle, haystack, opts)
	if err != nil || !best.Found {
		return nil, err
	}
	scaled := scaleNeedle(ToRGBA(needle), best.Scale)
	if scaled == nil {
		return nil, nil
	}
	return LocateAll(scaled, haystack, opts.Options)
}

// scaleFactors expands the configured range into explicit factors. An unset
// range degenerates to the single native scale.
func scaleFactors(opts ScaleOptions) []float64 {
	if opts.MinScale <= 0 || opts.MaxScale <= 0 || opts.ScaleStep <= 0 || opts.MaxScale < opts.MinScale {
		return []float64{1.0}
	}
	factors := make([]float64, 0, maxScaleSteps)
	for s := opts.MinScale; s <= opts.MaxScale+1e-9 && len(factors) < maxScaleSteps; s += opts.ScaleStep {
		factors = append(factors, s)
	}
	return factors
}

// scaleNeedle resizes the needle by factor with bilinear interpolation.
// Factors producing a needle smaller than 2x2 are skipped.
func scaleNeedle(nd *image.RGBA, factor float64) *image.RGBA {
	if factor == 1.0 {
		return nd
	}
	b := nd.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 2 || h < 2 {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(out, out.Bounds(), nd, b, xdraw.Src, nil)
	return out
}
