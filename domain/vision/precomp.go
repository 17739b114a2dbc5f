package vision

import (
	"image"
	"math"
)

// Rec. 709 luma weights, same as the capture pipeline uses elsewhere.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// flatEps is the joint-variance floor below which a needle or window is
// treated as a solid color.
const flatEps = 1e-6

// framePrecomp stores per-channel haystack samples for the search window and
// their summed-area tables (integral images). The integrals allow O(1)
// window sum and variance queries per channel.
type framePrecomp struct {
	ch         [][]float64 // row-major samples, one slice per channel
	integral   [][]float64
	integralSq [][]float64
	W, H       int
}

// needlePrecomp caches per-channel needle samples and summary statistics.
// Statistics are joint across channels so a single NCC score covers color
// matching.
type needlePrecomp struct {
	ch     [][]float64
	mean   []float64 // per-channel mean
	varSum float64   // joint sum of squared deviations
	W, H   int
	flat   bool
}

// sampleChannels extracts pixel samples for rect from img. Grayscale mode
// produces one luminance channel, otherwise three RGB channels.
func sampleChannels(img *image.RGBA, rect image.Rectangle, grayscale bool) [][]float64 {
	w, h := rect.Dx(), rect.Dy()
	n := w * h
	nchan := 3
	if grayscale {
		nchan = 1
	}
	ch := make([][]float64, nchan)
	for c := range ch {
		ch[c] = make([]float64, n)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(rect.Min.X+x, rect.Min.Y+y)
			r := float64(img.Pix[i+0])
			g := float64(img.Pix[i+1])
			b := float64(img.Pix[i+2])
			off := y*w + x
			if grayscale {
				ch[0][off] = lumaR*r + lumaG*g + lumaB*b
			} else {
				ch[0][off] = r
				ch[1][off] = g
				ch[2][off] = b
			}
		}
	}
	return ch
}

// buildFramePrecomp computes samples and their integral tables for the
// haystack window rect.
func buildFramePrecomp(img *image.RGBA, rect image.Rectangle, grayscale bool) *framePrecomp {
	ch := sampleChannels(img, rect, grayscale)
	w, h := rect.Dx(), rect.Dy()
	p := &framePrecomp{
		ch:         ch,
		integral:   make([][]float64, len(ch)),
		integralSq: make([][]float64, len(ch)),
		W:          w,
		H:          h,
	}
	for c, vals := range ch {
		integral := make([]float64, len(vals))
		integralSq := make([]float64, len(vals))
		for y := 0; y < h; y++ {
			var rowSum, rowSum2 float64
			for x := 0; x < w; x++ {
				off := y*w + x
				v := vals[off]
				rowSum += v
				rowSum2 += v * v
				if y == 0 {
					integral[off] = rowSum
					integralSq[off] = rowSum2
				} else {
					integral[off] = integral[(y-1)*w+x] + rowSum
					integralSq[off] = integralSq[(y-1)*w+x] + rowSum2
				}
			}
		}
		p.integral[c] = integral
		p.integralSq[c] = integralSq
	}
	return p
}

// buildNeedlePrecomp computes samples and joint statistics for the needle.
func buildNeedlePrecomp(img *image.RGBA, grayscale bool) *needlePrecomp {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	ch := sampleChannels(img, b, grayscale)
	n := float64(w * h)
	p := &needlePrecomp{ch: ch, mean: make([]float64, len(ch)), W: w, H: h}
	for c, vals := range ch {
		var sum, sum2 float64
		for _, v := range vals {
			sum += v
			sum2 += v * v
		}
		p.mean[c] = sum / n
		p.varSum += sum2 - sum*sum/n
	}
	p.flat = p.varSum <= flatEps
	return p
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(ii []float64, W, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	at := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return ii[y*W+x]
	}
	return at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
}

// scoreAt computes the normalized cross-correlation between the needle and
// the window whose top-left corner is (x, y) in frame coordinates. Per-channel
// means are subtracted and the normalization is joint across channels. The
// returned score is in [-1, 1]; windows with no variance score -1.
func scoreAt(fp *framePrecomp, np *needlePrecomp, x, y int) float64 {
	w, h := np.W, np.H
	n := float64(w * h)
	var numer, frameVar float64
	for c := range np.ch {
		sumF := integralSum(fp.integral[c], fp.W, x, y, x+w-1, y+h-1)
		sumF2 := integralSum(fp.integralSq[c], fp.W, x, y, x+w-1, y+h-1)
		meanF := sumF / n
		frameVar += sumF2 - sumF*sumF/n

		frame := fp.ch[c]
		needle := np.ch[c]
		var sumFT float64
		for i := 0; i < len(needle); i++ {
			py := i / w
			px := i % w
			sumFT += frame[(y+py)*fp.W+(x+px)] * needle[i]
		}
		numer += sumFT - n*meanF*np.mean[c]
	}
	// Float error can push the variance of a near-flat window fractionally
	// negative, which would turn the sqrt into NaN.
	if frameVar <= flatEps {
		return -1
	}
	denom := math.Sqrt(frameVar * np.varSum)
	if denom <= 0 {
		return -1
	}
	score := numer / denom
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score
}

// windowEquals reports whether the window at (x, y) matches the needle pixel
// for pixel across all channels. Used for solid-color needles whose NCC score
// is undefined.
func windowEquals(fp *framePrecomp, np *needlePrecomp, x, y int) bool {
	w := np.W
	for c := range np.ch {
		frame := fp.ch[c]
		needle := np.ch[c]
		for i := 0; i < len(needle); i++ {
			py := i / w
			px := i % w
			if math.Abs(frame[(y+py)*fp.W+(x+px)]-needle[i]) > 1e-9 {
				return false
			}
		}
	}
	return true
}
