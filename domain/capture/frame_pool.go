package capture

import (
	"image"
	"image/draw"
	"sync"
)

// Reusable frame pool to reduce heap churn from the polling loop, which
// allocates one full-viewport RGBA per iteration. Decoders and capture
// backends still allocate their own frames; the pool helps for crops and for
// callers that recycle haystacks between iterations. If consumers never
// recycle, behavior degrades gracefully to plain allocation.

var framePool sync.Pool // stores *image.RGBA

// AcquireFrame returns a reusable RGBA image sized to rect. The returned Pix
// length exactly matches rect area * 4 and Stride is width*4.
func AcquireFrame(rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

// RecycleFrame returns a frame to the pool. The caller must not touch the
// frame afterwards.
func RecycleFrame(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}

// Crop copies the rect sub-area of src into a pooled frame whose bounds start
// at (0, 0). rect is clamped to src bounds; an empty intersection yields nil.
func Crop(src *image.RGBA, rect image.Rectangle) *image.RGBA {
	if src == nil {
		return nil
	}
	r := rect.Intersect(src.Bounds())
	if r.Empty() {
		return nil
	}
	out := AcquireFrame(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), src, r.Min, draw.Src)
	return out
}
