package capture

import (
	"image"
	"image/color"
	"testing"
)

func TestAcquireFrame_SizesPixBuffer(t *testing.T) {
	rect := image.Rect(0, 0, 32, 16)
	img := AcquireFrame(rect)
	if img.Bounds() != rect {
		t.Fatalf("wrong bounds: %v", img.Bounds())
	}
	if len(img.Pix) != 32*16*4 {
		t.Fatalf("wrong pix length: %d", len(img.Pix))
	}
	if img.Stride != 32*4 {
		t.Fatalf("wrong stride: %d", img.Stride)
	}
	RecycleFrame(img)
}

func TestAcquireFrame_ReusesRecycledBuffer(t *testing.T) {
	big := AcquireFrame(image.Rect(0, 0, 64, 64))
	buf := &big.Pix[0]
	RecycleFrame(big)
	small := AcquireFrame(image.Rect(0, 0, 8, 8))
	if len(small.Pix) != 8*8*4 {
		t.Fatalf("wrong pix length after reuse: %d", len(small.Pix))
	}
	// Pool reuse is best-effort; when it happens the backing array is shared.
	if &small.Pix[0] == buf && cap(small.Pix) < 8*8*4 {
		t.Fatal("reused buffer too small")
	}
	RecycleFrame(small)
}

func TestAcquireFrame_DegenerateRect(t *testing.T) {
	img := AcquireFrame(image.Rect(0, 0, 0, 10))
	if img == nil {
		t.Fatal("degenerate rect must still return an image")
	}
	if len(img.Pix) != 0 {
		t.Fatalf("degenerate rect must have no pixels, got %d", len(img.Pix))
	}
}

func TestCrop_CopiesSubArea(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 40))
	mark := color.RGBA{200, 10, 30, 255}
	src.SetRGBA(12, 14, mark)

	out := Crop(src, image.Rect(10, 10, 30, 30))
	if out == nil {
		t.Fatal("expected a crop")
	}
	if b := out.Bounds(); b.Min.X != 0 || b.Min.Y != 0 || b.Dx() != 20 || b.Dy() != 20 {
		t.Fatalf("wrong crop bounds: %v", b)
	}
	if out.RGBAAt(2, 4) != mark {
		t.Fatalf("pixel not copied: %v", out.RGBAAt(2, 4))
	}

	// Mutating the crop must not touch the source.
	out.SetRGBA(0, 0, color.RGBA{1, 2, 3, 255})
	if src.RGBAAt(10, 10) == out.RGBAAt(0, 0) {
		t.Fatal("crop shares pixels with the source")
	}
	RecycleFrame(out)
}

func TestCrop_ClampsAndRejectsEmpty(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	out := Crop(src, image.Rect(15, 15, 40, 40))
	if out == nil {
		t.Fatal("partially overlapping rect must crop")
	}
	if b := out.Bounds(); b.Dx() != 5 || b.Dy() != 5 {
		t.Fatalf("clamped crop wrong size: %v", b)
	}
	RecycleFrame(out)

	if out := Crop(src, image.Rect(100, 100, 120, 120)); out != nil {
		t.Fatalf("disjoint rect must yield nil, got %v", out.Bounds())
	}
	if out := Crop(nil, image.Rect(0, 0, 10, 10)); out != nil {
		t.Fatal("nil source must yield nil")
	}
}
