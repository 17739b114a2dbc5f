package vision

import (
	"image"
	"image/draw"
	"os"

	// Needle files come from whatever tool the user cropped them with, so
	// register the common codecs beyond PNG.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadNeedle reads and decodes a needle image from disk. A missing or
// undecodable file yields a *LoadError.
func LoadNeedle(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return img, nil
}

// ToRGBA returns src as *image.RGBA, copying only when the underlying type
// differs.
func ToRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}
