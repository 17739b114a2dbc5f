// Package bot exposes the high-level visual locator operations: register
// needle images under labels, then find them on the live capture surface with
// retry-until-timeout semantics.
package bot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soocke/vision-bot-go/config"
	"github.com/soocke/vision-bot-go/domain/capture"
	"github.com/soocke/vision-bot-go/domain/vision"
)

// ErrUnknownLabel reports a find call for a label never registered with
// AddImage.
var ErrUnknownLabel = fmt.Errorf("bot: unknown image label")

// FindOptions tunes a single find call. Zero values fall back to the session
// config.
type FindOptions struct {
	Region      vision.Region
	Matching    float64       // minimum NCC score; 0 → config value
	Grayscale   bool          // correlate on luminance (or'ed with config)
	WaitingTime time.Duration // polling budget; 0 → config value
	FirstOnly   bool          // request first match instead of best; unimplemented, warns
	Threshold   int           // grayscale binarization threshold; unimplemented, warns
}

// Bot is one locator session: a capture provider, a label → needle-path map,
// and the last found element. One Bot is driven by one caller at a time.
type Bot struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider capture.Provider
	state    *State
}

// New creates a session over the given capture provider. cfg may be nil for
// defaults; logger may be nil to disable logging.
func New(cfg *config.Config, provider capture.Provider, logger *slog.Logger) *Bot {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	_ = cfg.Validate()
	return &Bot{cfg: cfg, provider: provider, logger: logger, state: NewState()}
}

// State returns the session state.
func (b *Bot) State() *State { return b.state }

// AddImage registers a needle image path under label. Entries persist for the
// session and are read by every find call.
func (b *Bot) AddImage(label, path string) {
	b.state.MapImages[label] = path
}

// ImageFromMap loads the needle registered under label.
func (b *Bot) ImageFromMap(label string) (image.Image, error) {
	path, ok := b.state.MapImages[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return vision.LoadNeedle(path)
}

// LastElement returns the element located by the most recent successful find,
// or nil.
func (b *Bot) LastElement() *vision.Match { return b.state.Element }

// SetCurrentElement overrides the element subsequent actions operate on.
// Equivalent to assigning State().Element.
func (b *Bot) SetCurrentElement(m *vision.Match) { b.state.Element = m }

// Find locates the best occurrence of label on the capture surface, polling
// until a hit or the waiting budget elapses. Alias of FindUntil, kept for API
// compatibility.
func (b *Bot) Find(ctx context.Context, label string, opts FindOptions) (*vision.Match, error) {
	return b.FindUntil(ctx, label, opts)
}

// FindUntil locates the best occurrence of label, re-capturing until a hit or
// timeout. A timeout returns (nil, nil); it is not an error. On success the
// session's last found element is updated.
func (b *Bot) FindUntil(ctx context.Context, label string, opts FindOptions) (*vision.Match, error) {
	b.state.Element = nil
	needle, err := b.ImageFromMap(label)
	if err != nil {
		return nil, err
	}
	b.warnUnsupported(opts)
	if err := b.validateRegion(ctx, opts.Region); err != nil {
		return nil, err
	}
	vopts := b.visionOptions(opts)

	var found *vision.Match
	state, err := b.poll(ctx, b.waitingTime(opts), func(frame *image.RGBA) (bool, error) {
		m, err := b.locateBest(ctx, needle, frame, vopts)
		if err != nil {
			if isRegionError(err) {
				return false, nil
			}
			return false, err
		}
		if m == nil {
			return false, nil
		}
		found = m
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if state != stateFound {
		return nil, nil
	}
	b.state.Element = found
	return found, nil
}

// FindAll locates every deduplicated occurrence of label, re-capturing until
// the set is non-empty or timeout. Results are materialized (safe for
// concurrent consumption, unlike a shared generator) and ordered
// score-descending before deduplication. Timeout returns (nil, nil).
func (b *Bot) FindAll(ctx context.Context, label string, opts FindOptions) ([]vision.Match, error) {
	b.state.Element = nil
	needle, err := b.ImageFromMap(label)
	if err != nil {
		return nil, err
	}
	b.warnUnsupported(opts)
	if err := b.validateRegion(ctx, opts.Region); err != nil {
		return nil, err
	}
	vopts := b.visionOptions(opts)

	var found []vision.Match
	state, err := b.poll(ctx, b.waitingTime(opts), func(frame *image.RGBA) (bool, error) {
		matches, err := b.locateSet(ctx, needle, frame, vopts)
		if err != nil {
			if isRegionError(err) {
				return false, nil
			}
			return false, err
		}
		if len(matches) == 0 {
			return false, nil
		}
		found = vision.Deduplicate(matches)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if state != stateFound {
		return nil, nil
	}
	b.state.Element = &found[0]
	return found, nil
}

// FindMultiple evaluates several labels against each capture in parallel,
// polling until every label resolves or timeout. At timeout the partial map
// from the last capture is returned: resolved labels keep their match,
// unresolved labels map to nil. It does not return early with partial
// results.
func (b *Bot) FindMultiple(ctx context.Context, labels []string, opts FindOptions) (map[string]*vision.Match, error) {
	needles := make([]image.Image, len(labels))
	for i, label := range labels {
		img, err := b.ImageFromMap(label)
		if err != nil {
			return nil, err
		}
		needles[i] = img
	}
	b.warnUnsupported(opts)
	if err := b.validateRegion(ctx, opts.Region); err != nil {
		return nil, err
	}
	vopts := b.visionOptions(opts)

	results := make([]*vision.Match, len(labels))
	_, err := b.poll(ctx, b.waitingTime(opts), func(frame *image.RGBA) (bool, error) {
		round := make([]*vision.Match, len(labels))
		var g errgroup.Group
		for i := range needles {
			g.Go(func() error {
				m, err := vision.Locate(needles[i], frame, vopts)
				if err != nil {
					if isRegionError(err) {
						return nil
					}
					return err
				}
				round[i] = m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return false, err
		}
		results = round
		for _, m := range round {
			if m == nil {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*vision.Match, len(labels))
	for i, label := range labels {
		out[label] = results[i]
	}
	return out, nil
}

// ElementCoords finds label on a single capture (no polling) and returns its
// top-left coordinates. ok is false when nothing cleared the threshold.
func (b *Bot) ElementCoords(ctx context.Context, label string, opts FindOptions) (x, y int, ok bool, err error) {
	b.state.Element = nil
	needle, err := b.ImageFromMap(label)
	if err != nil {
		return 0, 0, false, err
	}
	b.warnUnsupported(opts)
	frame, err := b.provider.Capture(ctx, nil)
	if err != nil {
		return 0, 0, false, err
	}
	defer capture.RecycleFrame(frame)
	m, err := b.locateBest(ctx, needle, frame, b.visionOptions(opts))
	if err != nil || m == nil {
		return 0, 0, false, err
	}
	b.state.Element = m
	return m.Left, m.Top, true, nil
}

// ElementCoordsCentered is ElementCoords reporting the match center.
func (b *Bot) ElementCoordsCentered(ctx context.Context, label string, opts FindOptions) (x, y int, ok bool, err error) {
	_, _, ok, err = b.ElementCoords(ctx, label, opts)
	if err != nil || !ok {
		return 0, 0, ok, err
	}
	cx, cy := b.state.Element.Center()
	return cx, cy, true, nil
}

// Screenshot captures the current surface, optionally cropped to region, and
// saves it to path when non-empty.
func (b *Bot) Screenshot(ctx context.Context, path string, region *vision.Region) (*image.RGBA, error) {
	frame, err := b.provider.Capture(ctx, nil)
	if err != nil {
		return nil, err
	}
	if region != nil {
		fb := frame.Bounds()
		rect, err := region.Rect(fb.Dx(), fb.Dy())
		if err != nil {
			return nil, err
		}
		cropped := capture.Crop(frame, rect.Add(fb.Min))
		capture.RecycleFrame(frame)
		frame = cropped
	}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("bot: save screenshot: %w", err)
		}
		defer f.Close()
		if err := png.Encode(f, frame); err != nil {
			return nil, fmt.Errorf("bot: encode screenshot: %w", err)
		}
	}
	return frame, nil
}

// ScreenCut captures a sub-area of the surface.
func (b *Bot) ScreenCut(ctx context.Context, x, y, width, height int) (*image.RGBA, error) {
	return b.Screenshot(ctx, "", &vision.Region{Left: x, Top: y, Width: width, Height: height})
}

// SaveScreenshot captures the full surface into a PNG file.
func (b *Bot) SaveScreenshot(ctx context.Context, path string) error {
	img, err := b.Screenshot(ctx, path, nil)
	if img != nil {
		capture.RecycleFrame(img)
	}
	return err
}

// DisplaySize reports the capture surface dimensions.
func (b *Bot) DisplaySize(ctx context.Context) (int, int, error) {
	return b.provider.ViewportSize(ctx)
}

// locateBest runs a single-frame best-match search, through the scale ladder
// when one is configured.
func (b *Bot) locateBest(ctx context.Context, needle image.Image, frame *image.RGBA, vopts vision.Options) (*vision.Match, error) {
	if !b.cfg.ScaleSearchEnabled() {
		return vision.Locate(needle, frame, vopts)
	}
	res, err := vision.MultiScaleMatch(ctx, needle, frame, vision.ScaleOptions{
		Options:     vopts,
		MinScale:    b.cfg.MinScale,
		MaxScale:    b.cfg.MaxScale,
		ScaleStep:   b.cfg.ScaleStep,
		StopOnScore: b.cfg.StopOnScore,
	})
	if err != nil || !res.Found {
		return nil, err
	}
	m := res.Match
	return &m, nil
}

// locateSet runs a single-frame search for every occurrence. With a scale
// ladder configured, the best-scoring scale is resolved first and the full
// set is collected at that scale, so set searches see the same elements as
// best-match searches.
func (b *Bot) locateSet(ctx context.Context, needle image.Image, frame *image.RGBA, vopts vision.Options) ([]vision.Match, error) {
	if !b.cfg.ScaleSearchEnabled() {
		return vision.LocateAll(needle, frame, vopts)
	}
	return vision.MultiScaleLocateAll(ctx, needle, frame, vision.ScaleOptions{
		Options:     vopts,
		MinScale:    b.cfg.MinScale,
		MaxScale:    b.cfg.MaxScale,
		ScaleStep:   b.cfg.ScaleStep,
		StopOnScore: b.cfg.StopOnScore,
	})
}

// validateRegion rejects regions that cannot select anything on the capture
// surface. The poll loop cannot tell a bad caller region apart from a frame
// captured smaller than the viewport (both surface as *vision.RegionError),
// so the region is checked once against the viewport up front and region
// errors inside the loop count as "no match yet".
func (b *Bot) validateRegion(ctx context.Context, region vision.Region) error {
	if region == (vision.Region{}) {
		return nil
	}
	if region.Width < 0 || region.Height < 0 {
		return &vision.RegionError{Region: region}
	}
	w, h, err := b.provider.ViewportSize(ctx)
	if err != nil || w <= 0 || h <= 0 {
		return nil
	}
	_, err = region.Rect(w, h)
	return err
}

func isRegionError(err error) bool {
	var regionErr *vision.RegionError
	return errors.As(err, &regionErr)
}

func (b *Bot) visionOptions(opts FindOptions) vision.Options {
	matching := opts.Matching
	if matching <= 0 {
		matching = b.cfg.Matching
	}
	return vision.Options{
		Region:     opts.Region,
		Confidence: matching,
		Grayscale:  opts.Grayscale || b.cfg.Grayscale,
		Stride:     b.cfg.Stride,
		Refine:     b.cfg.Refine,
	}
}

func (b *Bot) waitingTime(opts FindOptions) time.Duration {
	if opts.WaitingTime > 0 {
		return opts.WaitingTime
	}
	return time.Duration(b.cfg.WaitingTimeMs) * time.Millisecond
}

// warnUnsupported logs the documented fallbacks instead of failing: requests
// for first-match search or grayscale threshold tuning get best-match
// behavior.
func (b *Bot) warnUnsupported(opts FindOptions) {
	if b.logger == nil {
		return
	}
	if opts.FirstOnly {
		b.logger.Warn("first-match search not implemented; using best match")
	}
	if opts.Threshold != 0 {
		b.logger.Warn("grayscale threshold tuning not supported; ignoring")
	}
}

func (b *Bot) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}
