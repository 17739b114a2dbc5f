package cmd

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/soocke/vision-bot-go/domain/vision"
)

// saveAnnotated writes haystack to path as PNG with a rectangle and a
// "(cx,cy) score" label drawn over every match. Debugging aid for tuning
// confidence thresholds.
func saveAnnotated(path string, haystack image.Image, matches []vision.Match) error {
	rgba := vision.ToRGBA(haystack)
	boxColor := color.RGBA{R: 255, G: 0, B: 0, A: 255}
	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	outlineColor := color.RGBA{R: 0, G: 0, B: 0, A: 200}

	for _, m := range matches {
		drawRectangle(rgba, m.Left, m.Top, m.Left+m.Width, m.Top+m.Height, boxColor)
		cx, cy := m.Center()
		label := fmt.Sprintf("(%d,%d) %.2f", cx, cy, m.Score)
		drawTextWithOutline(rgba, label, cx, cy, textColor, outlineColor)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, rgba)
}

// drawRectangle draws a one-pixel rectangle outline, clamped to the image.
func drawRectangle(img *image.RGBA, x1, y1, x2, y2 int, c color.Color) {
	bounds := img.Bounds()
	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2 <= x1 || y2 <= y1 {
		return
	}
	for x := x1; x < x2; x++ {
		img.Set(x, y1, c)
		img.Set(x, y2-1, c)
	}
	for y := y1; y < y2; y++ {
		img.Set(x1, y, c)
		img.Set(x2-1, y, c)
	}
}

// drawTextWithOutline draws text centered at (x, y) with a contrast outline.
func drawTextWithOutline(img *image.RGBA, text string, x, y int, textColor, outlineColor color.Color) {
	// basicfont.Face7x13: ~7px advance, 13px height.
	offsetX := x - len(text)*7/2
	offsetY := y - 13/2

	drawString := func(dx, dy int, c color.Color) {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(c),
			Face: basicfont.Face7x13,
			Dot: fixed.Point26_6{
				X: fixed.Int26_6((offsetX + dx) * 64),
				Y: fixed.Int26_6((offsetY + dy) * 64),
			},
		}
		d.DrawString(text)
	}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawString(dx, dy, outlineColor)
		}
	}
	drawString(0, 0, textColor)
}
