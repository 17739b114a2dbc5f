package bot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soocke/vision-bot-go/config"
	"github.com/soocke/vision-bot-go/domain/vision"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// staticProvider serves copies of a fixed frame. Copies matter because the
// polling loop recycles frames after each iteration.
type staticProvider struct {
	frame    *image.RGBA
	captures int
	failErr  error
}

func (p *staticProvider) Capture(_ context.Context, _ *image.Rectangle) (*image.RGBA, error) {
	p.captures++
	if p.failErr != nil {
		return nil, p.failErr
	}
	b := p.frame.Bounds()
	out := image.NewRGBA(b)
	copy(out.Pix, p.frame.Pix)
	return out, nil
}

func (p *staticProvider) ViewportSize(_ context.Context) (int, int, error) {
	b := p.frame.Bounds()
	return b.Dx(), b.Dy(), nil
}

// sequenceProvider serves one frame per capture, repeating the last frame
// once the sequence is exhausted. The viewport reports the final frame's
// dimensions, mirroring a backend whose early captures are degenerate.
type sequenceProvider struct {
	frames   []*image.RGBA
	captures int
}

func (p *sequenceProvider) Capture(_ context.Context, _ *image.Rectangle) (*image.RGBA, error) {
	i := p.captures
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	p.captures++
	src := p.frames[i]
	b := src.Bounds()
	out := image.NewRGBA(b)
	copy(out.Pix, src.Pix)
	return out, nil
}

func (p *sequenceProvider) ViewportSize(_ context.Context) (int, int, error) {
	b := p.frames[len(p.frames)-1].Bounds()
	return b.Dx(), b.Dy(), nil
}

// whiteFrame builds a white RGBA surface.
func whiteFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

// paintSquare fills a solid square of the given color at (x, y).
func paintSquare(img *image.RGBA, x, y, size int, c color.RGBA) {
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			img.SetRGBA(x+dx, y+dy, c)
		}
	}
}

// writeNeedlePNG saves img as a PNG fixture and returns its path.
func writeNeedlePNG(t *testing.T, img image.Image, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return path
}

var red = color.RGBA{255, 0, 0, 255}

// redSquareNeedle returns the path of a solid red square PNG.
func redSquareNeedle(t *testing.T, size int) string {
	t.Helper()
	sq := image.NewRGBA(image.Rect(0, 0, size, size))
	paintSquare(sq, 0, 0, size, red)
	return writeNeedlePNG(t, sq, "red.png")
}

func newTestBot(frame *image.RGBA) (*Bot, *staticProvider) {
	p := &staticProvider{frame: frame}
	return New(config.DefaultConfig(), p, discardLogger), p
}

func TestFindUntil_Success(t *testing.T) {
	frame := whiteFrame(100, 100)
	paintSquare(frame, 40, 40, 10, red)
	b, _ := newTestBot(frame)
	b.AddImage("target", redSquareNeedle(t, 10))

	m, err := b.FindUntil(context.Background(), "target", FindOptions{WaitingTime: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Left != 40 || m.Top != 40 || m.Width != 10 || m.Height != 10 {
		t.Fatalf("wrong match: %+v", m)
	}
	if m.Score < 0.9 {
		t.Fatalf("score below threshold: %f", m.Score)
	}
	if b.LastElement() == nil || *b.LastElement() != *m {
		t.Fatalf("last element not updated: %+v", b.LastElement())
	}
}

func TestFindUntil_TimeoutIsNotAnError(t *testing.T) {
	b, p := newTestBot(whiteFrame(60, 60))
	b.AddImage("missing", redSquareNeedle(t, 8))

	start := time.Now()
	m, err := b.FindUntil(context.Background(), "missing", FindOptions{WaitingTime: 200 * time.Millisecond})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if m != nil {
		t.Fatalf("expected no match, got %+v", m)
	}
	if elapsed < 200*time.Millisecond {
		t.Fatalf("returned before the waiting budget elapsed: %v", elapsed)
	}
	if b.LastElement() != nil {
		t.Fatalf("last element must stay nil on timeout, got %+v", b.LastElement())
	}
	if p.captures < 2 {
		t.Fatalf("expected repeated captures during polling, got %d", p.captures)
	}
}

func TestFindUntil_UnknownLabel(t *testing.T) {
	b, _ := newTestBot(whiteFrame(10, 10))
	_, err := b.FindUntil(context.Background(), "nope", FindOptions{})
	if !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestFindUntil_LoadErrorSurfacesImmediately(t *testing.T) {
	b, p := newTestBot(whiteFrame(10, 10))
	b.AddImage("broken", filepath.Join(t.TempDir(), "does-not-exist.png"))

	start := time.Now()
	_, err := b.FindUntil(context.Background(), "broken", FindOptions{WaitingTime: 5 * time.Second})
	var loadErr *vision.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *vision.LoadError, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("load errors must not wait out the polling budget")
	}
	if p.captures != 0 {
		t.Fatalf("load errors must surface before any capture, got %d captures", p.captures)
	}
}

func TestFindUntil_ContextCancel(t *testing.T) {
	b, _ := newTestBot(whiteFrame(60, 60))
	b.AddImage("missing", redSquareNeedle(t, 8))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.FindUntil(ctx, "missing", FindOptions{WaitingTime: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFindAll_DeduplicatedMatches(t *testing.T) {
	frame := whiteFrame(120, 120)
	paintSquare(frame, 10, 10, 10, red)
	paintSquare(frame, 70, 60, 10, red)
	b, _ := newTestBot(frame)
	b.AddImage("target", redSquareNeedle(t, 10))

	matches, err := b.FindAll(context.Background(), "target", FindOptions{WaitingTime: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected two matches, got %d: %v", len(matches), matches)
	}
	if matches[0].Left != 10 || matches[0].Top != 10 {
		t.Fatalf("first match at wrong position: %+v", matches[0])
	}
	if matches[1].Left != 70 || matches[1].Top != 60 {
		t.Fatalf("second match at wrong position: %+v", matches[1])
	}
	if b.LastElement() == nil || *b.LastElement() != matches[0] {
		t.Fatalf("last element should be the best match, got %+v", b.LastElement())
	}
}

func TestFindMultiple_PartialResultAtTimeout(t *testing.T) {
	frame := whiteFrame(100, 100)
	paintSquare(frame, 20, 20, 10, red)
	b, _ := newTestBot(frame)
	b.AddImage("present", redSquareNeedle(t, 10))

	blue := image.NewRGBA(image.Rect(0, 0, 8, 8))
	paintSquare(blue, 0, 0, 8, color.RGBA{0, 0, 255, 255})
	b.AddImage("absent", writeNeedlePNG(t, blue, "blue.png"))

	res, err := b.FindMultiple(context.Background(), []string{"present", "absent"}, FindOptions{WaitingTime: 300 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected entries for every label, got %v", res)
	}
	if res["present"] == nil || res["present"].Left != 20 || res["present"].Top != 20 {
		t.Fatalf("resolved label wrong: %+v", res["present"])
	}
	if res["absent"] != nil {
		t.Fatalf("unresolved label must map to nil, got %+v", res["absent"])
	}
}

func TestFindMultiple_AllResolve(t *testing.T) {
	frame := whiteFrame(100, 100)
	paintSquare(frame, 20, 20, 10, red)
	paintSquare(frame, 60, 70, 8, color.RGBA{0, 128, 0, 255})
	b, _ := newTestBot(frame)
	b.AddImage("red", redSquareNeedle(t, 10))

	green := image.NewRGBA(image.Rect(0, 0, 8, 8))
	paintSquare(green, 0, 0, 8, color.RGBA{0, 128, 0, 255})
	b.AddImage("green", writeNeedlePNG(t, green, "green.png"))

	res, err := b.FindMultiple(context.Background(), []string{"red", "green"}, FindOptions{WaitingTime: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res["red"] == nil || res["green"] == nil {
		t.Fatalf("expected both labels resolved: %v", res)
	}
	if res["green"].Left != 60 || res["green"].Top != 70 {
		t.Fatalf("green at wrong position: %+v", res["green"])
	}
}

func TestElementCoordsCentered(t *testing.T) {
	frame := whiteFrame(100, 100)
	paintSquare(frame, 40, 40, 10, red)
	b, _ := newTestBot(frame)
	b.AddImage("target", redSquareNeedle(t, 10))

	x, y, ok, err := b.ElementCoordsCentered(context.Background(), "target", FindOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if x != 45 || y != 45 {
		t.Fatalf("wrong center: (%d, %d)", x, y)
	}
}

func TestElementCoords_Miss(t *testing.T) {
	b, _ := newTestBot(whiteFrame(50, 50))
	b.AddImage("missing", redSquareNeedle(t, 8))
	_, _, ok, err := b.ElementCoords(context.Background(), "missing", FindOptions{})
	if err != nil {
		t.Fatalf("a miss is not an error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false")
	}
}

func TestScreenshot_RegionCropAndSave(t *testing.T) {
	frame := whiteFrame(100, 80)
	paintSquare(frame, 30, 20, 5, red)
	b, _ := newTestBot(frame)

	path := filepath.Join(t.TempDir(), "shot.png")
	img, err := b.Screenshot(context.Background(), path, &vision.Region{Left: 30, Top: 20, Width: 40, Height: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 40 || got.Dy() != 30 {
		t.Fatalf("wrong crop size: %v", got)
	}
	if img.RGBAAt(0, 0) != red {
		t.Fatalf("crop origin should be the painted square, got %v", img.RGBAAt(0, 0))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("screenshot file missing: %v", err)
	}
	defer f.Close()
	saved, err := png.Decode(f)
	if err != nil {
		t.Fatalf("saved screenshot does not decode: %v", err)
	}
	if sb := saved.Bounds(); sb.Dx() != 40 || sb.Dy() != 30 {
		t.Fatalf("saved screenshot wrong size: %v", sb)
	}
}

func TestDisplaySize(t *testing.T) {
	b, _ := newTestBot(whiteFrame(123, 77))
	w, h, err := b.DisplaySize(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != 123 || h != 77 {
		t.Fatalf("wrong display size: %dx%d", w, h)
	}
}

func TestWarnUnsupportedOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	frame := whiteFrame(100, 100)
	paintSquare(frame, 40, 40, 10, red)
	p := &staticProvider{frame: frame}
	b := New(config.DefaultConfig(), p, logger)
	b.AddImage("target", redSquareNeedle(t, 10))

	_, err := b.Find(context.Background(), "target", FindOptions{FirstOnly: true, Threshold: 127, WaitingTime: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "first-match") {
		t.Fatalf("expected first-match warning, got: %s", out)
	}
	if !strings.Contains(out, "threshold") {
		t.Fatalf("expected threshold warning, got: %s", out)
	}
}

func TestFindUntil_EmptyFrameIsNoMatchYet(t *testing.T) {
	good := whiteFrame(100, 100)
	paintSquare(good, 40, 40, 10, red)
	p := &sequenceProvider{frames: []*image.RGBA{
		image.NewRGBA(image.Rect(0, 0, 0, 0)),
		good,
	}}
	b := New(config.DefaultConfig(), p, discardLogger)
	b.AddImage("target", redSquareNeedle(t, 10))

	m, err := b.FindUntil(context.Background(), "target", FindOptions{WaitingTime: 2 * time.Second})
	if err != nil {
		t.Fatalf("a zero-sized capture must not abort the search: %v", err)
	}
	if m == nil || m.Left != 40 || m.Top != 40 {
		t.Fatalf("expected a hit on the later capture, got %+v", m)
	}
	if p.captures < 2 {
		t.Fatalf("expected the degenerate frame to be skipped, got %d captures", p.captures)
	}
}

func TestFindUntil_PartialFrameIsNoMatchYet(t *testing.T) {
	good := whiteFrame(100, 100)
	paintSquare(good, 60, 60, 10, red)
	p := &sequenceProvider{frames: []*image.RGBA{
		whiteFrame(50, 50), // smaller than the requested region
		good,
	}}
	b := New(config.DefaultConfig(), p, discardLogger)
	b.AddImage("target", redSquareNeedle(t, 10))

	opts := FindOptions{
		Region:      vision.Region{Left: 55, Top: 55, Width: 30, Height: 30},
		WaitingTime: 2 * time.Second,
	}
	m, err := b.FindUntil(context.Background(), "target", opts)
	if err != nil {
		t.Fatalf("a partial capture must not abort the search: %v", err)
	}
	if m == nil || m.Left != 60 || m.Top != 60 {
		t.Fatalf("expected a hit once the full frame arrives, got %+v", m)
	}
}

func TestFindUntil_InvalidRegionFailsFast(t *testing.T) {
	frame := whiteFrame(100, 100)
	paintSquare(frame, 40, 40, 10, red)
	cases := []vision.Region{
		{Width: -1},
		{Left: 500, Top: 0, Width: 20, Height: 20},
	}
	for _, region := range cases {
		b, p := newTestBot(frame)
		b.AddImage("target", redSquareNeedle(t, 10))
		start := time.Now()
		_, err := b.FindUntil(context.Background(), "target", FindOptions{
			Region:      region,
			WaitingTime: 5 * time.Second,
		})
		var regionErr *vision.RegionError
		if !errors.As(err, &regionErr) {
			t.Fatalf("region %+v: expected *vision.RegionError, got %v", region, err)
		}
		if time.Since(start) > time.Second {
			t.Fatalf("region %+v: invalid regions must not wait out the budget", region)
		}
		if p.captures != 0 {
			t.Fatalf("region %+v: expected no captures, got %d", region, p.captures)
		}
	}
}

func TestFindAll_UsesScaleLadder(t *testing.T) {
	frame := whiteFrame(120, 120)
	paintSquare(frame, 10, 10, 10, red)
	paintSquare(frame, 70, 60, 10, red)
	cfg := config.DefaultConfig()
	cfg.MinScale = 1.0
	cfg.MaxScale = 1.5
	cfg.ScaleStep = 0.25
	p := &staticProvider{frame: frame}
	b := New(cfg, p, discardLogger)
	b.AddImage("target", redSquareNeedle(t, 8))

	matches, err := b.FindAll(context.Background(), "target", FindOptions{WaitingTime: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected both squares through the scale ladder, got %d: %v", len(matches), matches)
	}
	if matches[0].Left != 10 || matches[0].Top != 10 {
		t.Fatalf("first match at wrong position: %+v", matches[0])
	}
	if matches[1].Left != 70 || matches[1].Top != 60 {
		t.Fatalf("second match at wrong position: %+v", matches[1])
	}

	best, err := b.FindUntil(context.Background(), "target", FindOptions{WaitingTime: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best == nil {
		t.Fatal("best-match search must agree with the set search on visibility")
	}
}

func TestFindUntil_CaptureFailureKeepsPolling(t *testing.T) {
	p := &staticProvider{frame: whiteFrame(10, 10), failErr: errors.New("no frame")}
	b := New(config.DefaultConfig(), p, discardLogger)
	b.AddImage("target", redSquareNeedle(t, 4))

	m, err := b.FindUntil(context.Background(), "target", FindOptions{WaitingTime: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("capture failures must not abort the search: %v", err)
	}
	if m != nil {
		t.Fatalf("expected timeout, got %+v", m)
	}
	if p.captures < 2 {
		t.Fatalf("expected capture retries, got %d", p.captures)
	}
}
