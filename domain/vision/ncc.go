package vision

import (
	"image"
	"sort"
)

// DefaultConfidence is the minimum NCC score accepted when Options.Confidence
// is unset.
const DefaultConfidence = 0.9

// Options configures a single-shot template search.
type Options struct {
	Region     Region  // zero value searches the whole haystack
	Confidence float64 // minimum accepted NCC score (default 0.9)
	Grayscale  bool    // correlate on luminance only
	Stride     int     // coarse scan stride (default 1)
	Refine     bool    // when Stride > 1, re-scan densely around the best hit
}

// Rect resolves the region against a haystack of the given dimensions. Unset
// width or height extend to the haystack edge; out-of-bounds coordinates are
// clipped. A non-positive effective area is a *RegionError.
func (r Region) Rect(width, height int) (image.Rectangle, error) {
	if r.Width < 0 || r.Height < 0 {
		return image.Rectangle{}, &RegionError{Region: r}
	}
	w, h := r.Width, r.Height
	if w == 0 {
		w = width - r.Left
	}
	if h == 0 {
		h = height - r.Top
	}
	rect := image.Rect(r.Left, r.Top, r.Left+w, r.Top+h).Intersect(image.Rect(0, 0, width, height))
	if rect.Empty() {
		return image.Rectangle{}, &RegionError{Region: r}
	}
	return rect, nil
}

// LocateAll finds every occurrence of needle inside haystack whose NCC score
// clears the confidence threshold. Results are sorted score-descending (ties
// break top-to-bottom, left-to-right) and are not deduplicated; adjacent
// offsets of the same on-screen element commonly produce several hits. See
// Deduplicate.
//
// A needle larger than the (clamped) search region yields an empty result,
// not an error. The call is single-shot and idempotent: identical inputs
// produce identical match sets.
func LocateAll(needle, haystack image.Image, opts Options) ([]Match, error) {
	if needle == nil || haystack == nil {
		return nil, nil
	}
	hs := ToRGBA(haystack)
	hb := hs.Bounds()
	rect, err := opts.Region.Rect(hb.Dx(), hb.Dy())
	if err != nil {
		return nil, err
	}
	nd := ToRGBA(needle)
	nw, nh := nd.Bounds().Dx(), nd.Bounds().Dy()
	if nw == 0 || nh == 0 || nw > rect.Dx() || nh > rect.Dy() {
		return nil, nil
	}

	confidence := opts.Confidence
	if confidence <= 0 {
		confidence = DefaultConfidence
	}
	stride := opts.Stride
	if stride <= 0 {
		stride = 1
	}

	np := buildNeedlePrecomp(nd, opts.Grayscale)
	if np == nil {
		return nil, nil
	}
	// The frame precomp works in rect-local coordinates; add the rect origin
	// back when emitting matches.
	fp := buildFramePrecomp(hs, rect.Add(hb.Min), opts.Grayscale)

	var matches []Match
	maxY := fp.H - nh
	maxX := fp.W - nw
	for y := 0; y <= maxY; y += stride {
		for x := 0; x <= maxX; x += stride {
			var score float64
			if np.flat {
				if !windowEquals(fp, np, x, y) {
					continue
				}
				score = 1
			} else {
				score = scoreAt(fp, np, x, y)
			}
			if score >= confidence {
				matches = append(matches, Match{
					Left:   rect.Min.X + x,
					Top:    rect.Min.Y + y,
					Width:  nw,
					Height: nh,
					Score:  score,
				})
			}
		}
	}

	if opts.Refine && stride > 1 && len(matches) > 0 && !np.flat {
		matches = refineBest(matches, fp, np, rect, stride, confidence)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Top != matches[j].Top {
			return matches[i].Top < matches[j].Top
		}
		return matches[i].Left < matches[j].Left
	})
	return matches, nil
}

// Locate returns the highest-scoring occurrence of needle, or nil when no
// window clears the confidence threshold.
func Locate(needle, haystack image.Image, opts Options) (*Match, error) {
	matches, err := LocateAll(needle, haystack, opts)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	return &best, nil
}

// refineBest densely re-scans a one-stride neighborhood around the current
// best coarse hit and replaces it when a better position is found.
func refineBest(matches []Match, fp *framePrecomp, np *needlePrecomp, rect image.Rectangle, stride int, confidence float64) []Match {
	bestIdx := 0
	for i, m := range matches {
		if m.Score > matches[bestIdx].Score {
			bestIdx = i
		}
	}
	best := matches[bestIdx]
	bx := best.Left - rect.Min.X
	by := best.Top - rect.Min.Y
	minX := max(0, bx-stride)
	maxX := min(fp.W-np.W, bx+stride)
	minY := max(0, by-stride)
	maxY := min(fp.H-np.H, by+stride)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if score := scoreAt(fp, np, x, y); score > best.Score && score >= confidence {
				best = Match{Left: rect.Min.X + x, Top: rect.Min.Y + y, Width: np.W, Height: np.H, Score: score}
			}
		}
	}
	matches[bestIdx] = best
	return matches
}
